package fspath

import "errors"

var (
	ErrBadPath      = errors.New("malformed path")
	ErrDirNotFound  = errors.New("directory not found")
	ErrNotDirectory = errors.New("not a directory")
)
