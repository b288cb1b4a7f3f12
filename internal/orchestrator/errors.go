package orchestrator

import (
	"errors"
	"fmt"
)

// ErrLimitReached indicates the live-worker budget is exhausted
var ErrLimitReached = errors.New("worker limit reached")

// LimitReachedError carries the configured worker limit
type LimitReachedError struct {
	Max int
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("worker limit reached (max %d); close an existing worker or wait for one to finish", e.Max)
}

func (e *LimitReachedError) Unwrap() error { return ErrLimitReached }

// ErrDepthExceeded indicates the nesting budget is exhausted
var ErrDepthExceeded = errors.New("worker depth exceeded")

// DepthExceededError carries the configured depth limit
type DepthExceededError struct {
	Depth int
	Max   int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("worker depth %d exceeds the maximum of %d; have the parent do this work itself", e.Depth, e.Max)
}

func (e *DepthExceededError) Unwrap() error { return ErrDepthExceeded }

// ErrNotFound indicates an unknown worker id
var ErrNotFound = errors.New("worker not found")

// NotFoundError carries the unknown worker id
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("worker %s not found; it may have been closed already", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ErrAlreadyShutdown indicates a message was sent to a terminal worker
var ErrAlreadyShutdown = errors.New("worker already shut down")

// AlreadyShutdownError carries the terminal worker's id
type AlreadyShutdownError struct {
	ID string
}

func (e *AlreadyShutdownError) Error() string {
	return fmt.Sprintf("worker %s has already finished; spawn a new worker instead", e.ID)
}

func (e *AlreadyShutdownError) Unwrap() error { return ErrAlreadyShutdown }
