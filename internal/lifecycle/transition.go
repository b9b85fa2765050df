package lifecycle

import (
	"errors"
	"fmt"

	"github.com/joescharf/issueboard/internal/models"
)

var (
	// ErrInvalidTransition matches every rejected status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidStatus is returned when the target status is not a known value.
	ErrInvalidStatus = errors.New("invalid status")
)

// InvalidTransitionError describes a rejected status change.
type InvalidTransitionError struct {
	From models.IssueStatus
	To   models.IssueStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move issue from %s to %s: move it to %s first",
		e.From.Label(), e.To.Label(), models.IssueStatusInProgress.Label())
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CheckTransition reports whether an issue may move from one status to another.
// Only Open -> Done is forbidden; Done is not terminal.
func CheckTransition(from, to models.IssueStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if from == models.IssueStatusOpen && to == models.IssueStatusDone {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
