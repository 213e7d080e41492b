package storage_client

import "errors"

var (
	ErrFileNotFound = errors.New("file not found on storage server")
	ErrOutOfRange   = errors.New("offset or length out of range")
	ErrRemoteFailed = errors.New("storage server reported failure")
	ErrBadResponse  = errors.New("failed to decode storage server response")
)
