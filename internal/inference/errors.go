package inference

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a backend that cannot run in this build or environment.
var ErrUnavailable = errors.New("inference backend unavailable")

// Error is the single opaque failure surfaced to callers for any step of a
// generation. The conversation continues after it.
type Error struct {
	Op  string // encode, generate, decode, or a backend specific step
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "inference " + e.Op + " failed"
	}
	return fmt.Sprintf("inference %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsInferenceError reports whether err came out of a generation.
func IsInferenceError(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}

// IsUnavailable reports whether the backend is missing rather than failing.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
