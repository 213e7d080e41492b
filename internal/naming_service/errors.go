package naming_service

import "errors"

var (
	ErrBadArgument      = errors.New("bad argument")
	ErrNoStorageServers = errors.New("no storage servers registered")
	ErrInternal         = errors.New("internal invariant violation")
)
