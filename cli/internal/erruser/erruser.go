// Package erruser provides errors whose Error() returns only a user-facing
// message; the cause is available via Unwrap() for Details or logs.
package erruser

import (
	"errors"
	"fmt"
)

// Err holds a user-facing message and an optional cause for debugging.
// Error() returns only Msg so hook output stays one readable line; the CLI
// prints the cause separately as "Details: ...".
type Err struct {
	Msg string
	Err error
}

// Error returns the user-facing message only.
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap returns the underlying error. Safe on a nil receiver.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error with the given user-facing message. If err is non-nil,
// it is wrapped and available via Unwrap(). If err is nil, returns a plain
// error carrying only msg.
func New(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return &Err{Msg: msg, Err: err}
}

// Newf is New with a formatted message.
func Newf(err error, format string, args ...any) error {
	return New(fmt.Sprintf(format, args...), err)
}

// Details returns the wrapped cause of err for display, or "" when err has
// no cause.
func Details(err error) string {
	if err == nil {
		return ""
	}
	if u := errors.Unwrap(err); u != nil {
		return u.Error()
	}
	return ""
}
