package storage_registry

import "errors"

var (
	ErrAlreadyRegistered = errors.New("storage server already registered")
	ErrNotRegistered     = errors.New("storage server not registered")
	ErrBadStub           = errors.New("stub has no address")
)
