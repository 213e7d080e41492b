package metadata_service

import "errors"

var (
	ErrPathNotFound       = errors.New("path not found")
	ErrParentNotDirectory = errors.New("parent is not a directory")
	ErrNotDirectory       = errors.New("path is not a directory")
)
