package config

import "errors"

var (
	ErrReadFailed  = errors.New("failed to read config file")
	ErrParseFailed = errors.New("failed to parse config file")
)
