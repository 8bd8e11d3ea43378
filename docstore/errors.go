package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrife/roost/storage/kv"
)

var (
	// ErrClosed is returned by operations on a database or
	// engine that has been closed
	ErrClosed = errors.New("database is closed")
	// ErrMissingDoc indicates that the requested document or
	// revision does not exist or is deleted
	ErrMissingDoc = &Error{Status: 404, Name: "not_found", Message: "missing"}
	// ErrRevConflict indicates that a write violates the
	// new edits policy
	ErrRevConflict = &Error{Status: 409, Name: "conflict", Message: "Document update conflict"}
	// ErrMissingStub indicates that an attachment stub references
	// content the document does not have
	ErrMissingStub = &Error{Status: 412, Name: "missing_stub", Message: "unknown stub attachment"}
	// ErrBadArg indicates malformed input
	ErrBadArg = &Error{Status: 400, Name: "bad_request", Message: "Something wrong with the request"}
	// ErrBackend wraps a failure of the backing store
	ErrBackend = &Error{Status: 500, Name: "backend_error", Message: "backend failure"}
)

// Error is a document store error. Errors match each
// other with errors.Is when their names match.
type Error struct {
	Status  int
	Name    string
	Message string
	Reason  string
	cause   error
}

// Error implements error
func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Reason)
	}

	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is reports whether target is an *Error with the same name
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Name == e.Name
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) withReason(reason string) *Error {
	err := *e
	err.Reason = reason

	return &err
}

func (e *Error) withMessage(message string) *Error {
	err := *e
	err.Message = message

	return &err
}

func (e *Error) wrap(cause error) *Error {
	err := *e
	err.cause = cause
	err.Reason = cause.Error()

	return &err
}

func badArg(format string, args ...interface{}) error {
	return ErrBadArg.withMessage(fmt.Sprintf(format, args...))
}

func wrapError(wrap string, err error) error {
	var docErr *Error

	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrClosed):
		return ErrClosed
	case err == ErrClosed:
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &docErr):
		return err
	}

	return ErrBackend.wrap(fmt.Errorf("%s: %s", wrap, err))
}
