package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned when a write is made without an acting identity.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// Error is any failure raised at the persistence boundary.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permission reports whether the failure was an access-control rejection.
func (e *Error) Permission() bool { return errors.Is(e.Err, ErrPermissionDenied) }

// Wrap returns err as a store *Error for op. Errors that already are store
// errors are returned unchanged; nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPermission reports whether err is a permission store error.
func IsPermission(err error) bool { return errors.Is(err, ErrPermissionDenied) }
