package storage_service

import "errors"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrOutOfRange   = errors.New("offset or length out of range")
)
