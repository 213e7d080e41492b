package replication_service

import "errors"

var (
	ErrQueueFull = errors.New("replication queue is full")
	ErrStopped   = errors.New("replication service stopped")
)
