package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a Caller or Call identifier that resolves to no
// persisted record.
var ErrNotFound = errors.New("record not found")

// ResolutionError reports a callback path that resolves to no
// invocable unit.
type ResolutionError struct {
	Path   string
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot resolve callback %q", e.Path)
	}
	return fmt.Sprintf("cannot resolve callback %q: %s", e.Path, e.Reason)
}

// ParseError reports a malformed calendar field.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron field %s: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
