package isolation

import (
	"errors"
	"fmt"

	"github.com/mkoppen/subwarden/internal/classify"
)

// ErrUnavailable indicates the isolation wrapper is missing or broken
var ErrUnavailable = errors.New("isolation unavailable")

// UnavailableError reports why the isolation wrapper cannot be used
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("isolation unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// ErrExecutionFailed indicates a command exited nonzero
var ErrExecutionFailed = errors.New("execution failed")

// ExecutionFailedError carries the exit code and the failure classification
// of a command that exited nonzero.
type ExecutionFailedError struct {
	ExitCode       int
	Classification classify.Classification
}

func (e *ExecutionFailedError) Error() string {
	if e.Classification.SandboxCaused() {
		return fmt.Sprintf("command exited with code %d (%s/%s restriction: %s)",
			e.ExitCode, e.Classification.Kind, e.Classification.Subtype, e.Classification.Evidence)
	}
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}

func (e *ExecutionFailedError) Unwrap() error { return ErrExecutionFailed }
