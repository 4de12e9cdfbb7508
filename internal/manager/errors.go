package manager

import (
	"errors"

	"visionchat/internal/inference"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy(reason string) error { return tooBusyError{reason: reason} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

// badRequestError marks caller input that can never succeed (return 400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

// ErrBadRequest constructs a badRequestError.
func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }

// IsBadRequest reports whether err is a validation failure.
func IsBadRequest(err error) bool {
	var br badRequestError
	return errors.As(err, &br)
}

// dependencyUnavailableError signals a missing model backend so the HTTP
// layer can return 503 Service Unavailable instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed
// runtime dependency, including an unreachable inference backend.
func IsDependencyUnavailable(err error) bool {
	var du dependencyUnavailableError
	return errors.As(err, &du) || inference.IsUnavailable(err)
}
