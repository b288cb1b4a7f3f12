package approval

import (
	"errors"
	"fmt"
)

// ErrDenied indicates a confirmation was denied
var ErrDenied = errors.New("approval denied")

// ErrTimedOut indicates a confirmation timed out and was treated as denial
var ErrTimedOut = errors.New("approval timed out")

// DeniedError carries the reason a confirmation was denied
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("approval denied: %s", e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

const headlessReason = "cannot prompt for approval in a non-interactive session; run interactively or pre-approve the command"
