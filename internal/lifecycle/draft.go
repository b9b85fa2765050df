package lifecycle

import (
	"context"
	"sync"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
)

// DraftState is the position of a Draft in the create workflow.
type DraftState int

const (
	// StateIdle: the form is being edited; the next Submit checks for duplicates.
	StateIdle DraftState = iota
	// StateAwaitingConfirmation: duplicates were shown; the next Submit creates anyway.
	StateAwaitingConfirmation
	// StateSubmitting: a check or create is in flight.
	StateSubmitting
)

func (s DraftState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// SubmitResult is the outcome of a successful Submit: either the created issue
// or the matches the caller has to confirm.
type SubmitResult struct {
	Issue   *models.Issue
	Matches []similarity.Match
}

// Created reports whether the submit created an issue.
func (r SubmitResult) Created() bool { return r.Issue != nil }

// Draft holds the form for a new issue and drives the check-then-create
// protocol. It is safe for concurrent use.
type Draft struct {
	svc *Service

	mu      sync.Mutex
	form    models.Candidate
	state   DraftState
	matches []similarity.Match
	version int
}

// NewDraft returns an empty draft with Medium priority preselected.
func NewDraft(svc *Service) *Draft {
	return &Draft{svc: svc, form: blankForm()}
}

func blankForm() models.Candidate {
	return models.Candidate{Priority: models.IssuePriorityMedium}
}

// Form returns a copy of the current form.
func (d *Draft) Form() models.Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.form
}

func (d *Draft) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Matches returns the duplicates found by the last check while awaiting confirmation.
func (d *Draft) Matches() []similarity.Match {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matches
}

// edit applies fn to the form. Any edit invalidates a pending duplicate warning.
func (d *Draft) edit(fn func(*models.Candidate)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.form)
	d.version++
	if d.state == StateAwaitingConfirmation {
		d.state = StateIdle
		d.matches = nil
	}
}

func (d *Draft) SetTitle(title string) {
	d.edit(func(c *models.Candidate) { c.Title = title })
}

func (d *Draft) SetDescription(desc string) {
	d.edit(func(c *models.Candidate) { c.Description = desc })
}

func (d *Draft) SetPriority(p models.IssuePriority) {
	d.edit(func(c *models.Candidate) { c.Priority = p })
}

func (d *Draft) SetAssignedTo(assignee string) {
	d.edit(func(c *models.Candidate) { c.AssignedTo = assignee })
}

// SetForm replaces the whole form.
func (d *Draft) SetForm(c models.Candidate) {
	d.edit(func(f *models.Candidate) { *f = c })
}

// Dismiss drops a pending duplicate warning and keeps the form for editing.
func (d *Draft) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateAwaitingConfirmation {
		d.state = StateIdle
		d.matches = nil
	}
}

// Reset clears the form and any pending warning.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = blankForm()
	d.state = StateIdle
	d.matches = nil
	d.version++
}

// Submit advances the workflow. From Idle it checks for duplicates and either
// returns the matches (moving to AwaitingConfirmation) or creates the issue
// when there are none. From AwaitingConfirmation it creates the issue as-is.
// On failure the draft returns to its prior state with the form intact.
// If the form is edited while the check runs, Submit returns ErrFormChanged
// with an empty result and the draft goes back to Idle.
func (d *Draft) Submit(ctx context.Context, user *models.User) (SubmitResult, error) {
	d.mu.Lock()
	if d.state == StateSubmitting {
		d.mu.Unlock()
		return SubmitResult{}, ErrBusy
	}
	prev := d.state
	form := d.form
	version := d.version
	d.state = StateSubmitting
	d.mu.Unlock()

	if err := d.svc.requireUser(user, "submit draft"); err != nil {
		d.restore(prev, version)
		return SubmitResult{}, err
	}
	if err := d.svc.Validate(form); err != nil {
		d.restore(prev, version)
		return SubmitResult{}, err
	}

	if prev == StateIdle {
		matches, err := d.svc.CheckDuplicates(ctx, user, form)
		if err != nil {
			d.restore(prev, version)
			return SubmitResult{}, err
		}
		if len(matches) > 0 {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.version != version {
				// These matches belong to an older form.
				d.state = StateIdle
				d.matches = nil
				return SubmitResult{}, ErrFormChanged
			}
			d.state = StateAwaitingConfirmation
			d.matches = matches
			return SubmitResult{Matches: matches}, nil
		}
		d.mu.Lock()
		if d.version != version {
			d.state = StateIdle
			d.mu.Unlock()
			return SubmitResult{}, ErrFormChanged
		}
		d.mu.Unlock()
	}

	issue, err := d.svc.Create(ctx, user, form)
	if err != nil {
		d.restore(prev, version)
		return SubmitResult{}, err
	}

	d.mu.Lock()
	if d.version == version {
		d.form = blankForm()
	}
	d.state = StateIdle
	d.matches = nil
	d.mu.Unlock()
	return SubmitResult{Issue: issue}, nil
}

func (d *Draft) restore(prev DraftState, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.version != version {
		d.state = StateIdle
		d.matches = nil
		return
	}
	d.state = prev
}
