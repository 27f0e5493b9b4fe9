package chat

import "errors"

var (
	// ErrValidation marks input rejected before it reaches the store.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a store failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrShuttingDown is returned once the sequencer stopped accepting work.
	ErrShuttingDown = errors.New("message service is shutting down")
)
