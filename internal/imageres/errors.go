package imageres

import (
	"errors"
	"fmt"
)

// Kind classifies a resolution failure so callers can report it and continue.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidSource
	KindFetch
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSource:
		return "invalid-source"
	case KindFetch:
		return "fetch-error"
	case KindDecode:
		return "decode-error"
	default:
		return "none"
	}
}

var (
	// ErrInvalidSource: the string is neither an http(s) URL nor an existing file.
	ErrInvalidSource = errors.New("invalid image source")
	// ErrFetch: network transport failure, non-2xx status or unreadable file.
	ErrFetch = errors.New("image fetch failed")
	// ErrDecode: the bytes are not a supported image.
	ErrDecode = errors.New("image decode failed")
)

// Error is returned by every Resolver method.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %q", e.sentinel(), e.Source)
	}
	return fmt.Sprintf("%s: %q: %v", e.sentinel(), e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel corresponding to e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindInvalidSource:
		return ErrInvalidSource
	case KindFetch:
		return ErrFetch
	case KindDecode:
		return ErrDecode
	default:
		return nil
	}
}

// KindOf extracts the failure kind from err, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

func invalidSource(src string, err error) error { return &Error{Kind: KindInvalidSource, Source: src, Err: err} }
func fetchError(src string, err error) error    { return &Error{Kind: KindFetch, Source: src, Err: err} }
func decodeError(src string, err error) error   { return &Error{Kind: KindDecode, Source: src, Err: err} }
