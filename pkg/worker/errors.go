package worker

import "errors"

// Pool lifecycle errors.
var (
	ErrNilProcessor       = errors.New("worker pool processor cannot be nil")
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrStopTimeout        = errors.New("worker pool stop timed out")
)
