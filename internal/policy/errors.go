package policy

import (
	"errors"
	"fmt"
)

// ErrInvalid indicates a policy field carried an unrecognized value
var ErrInvalid = errors.New("invalid policy value")

// InvalidError reports which policy field failed to parse and what it held
type InvalidError struct {
	Field string
	Value string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid policy value %q for field %s; check the sandbox settings file", e.Value, e.Field)
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }
