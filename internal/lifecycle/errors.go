package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/issueboard/internal/store"
)

var (
	// ErrUnauthenticated is returned when an operation needs a signed-in user and has none.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrBusy is returned when a draft is already being submitted.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrFormChanged is returned when the form was edited while its duplicate
	// check ran. The draft is back to idle and must be submitted again.
	ErrFormChanged = errors.New("the issue was edited while it was being checked; submit again")
)

// ValidationError lists the candidate fields that failed validation.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid issue: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []string{err.Error()}, Err: err}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields = append(fields, fe.Field()+" is required")
		case "oneof":
			fields = append(fields, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			fields = append(fields, fe.Field()+" is invalid")
		}
	}
	return &ValidationError{Fields: fields, Err: err}
}

// ErrorKind classifies workflow errors for user messaging.
type ErrorKind string

const (
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindPermission        ErrorKind = "permission"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindValidation        ErrorKind = "validation"
	KindBusy              ErrorKind = "busy"
	KindStore             ErrorKind = "store"
	KindInternal          ErrorKind = "internal"
)

// Describe classifies err and returns the message to show the user.
func Describe(err error) (ErrorKind, string) {
	var verr *ValidationError
	var terr *InvalidTransitionError
	var serr *store.Error

	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated, "You must be signed in to do that. Run 'issueboard auth login' or sign in first."
	case errors.As(err, &terr):
		return KindInvalidTransition, terr.Error()
	case errors.Is(err, ErrInvalidStatus):
		return KindValidation, err.Error()
	case errors.As(err, &verr):
		return KindValidation, verr.Error()
	case errors.Is(err, ErrBusy), errors.Is(err, ErrFormChanged):
		return KindBusy, err.Error()
	case store.IsPermission(err):
		return KindPermission, "Permission denied. Make sure you are signed in and allowed to modify issues."
	case store.IsNotFound(err):
		return KindNotFound, err.Error()
	case errors.As(err, &serr):
		return KindStore, err.Error()
	default:
		return KindInternal, err.Error()
	}
}
