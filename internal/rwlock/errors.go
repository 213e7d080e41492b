package rwlock

import "errors"

var ErrStopped = errors.New("lock has been stopped")
