// Package lifecycle implements the issue workflow: duplicate checks before
// creation, the status transition guard, and the two-phase create draft.
//
// Every operation takes the acting user explicitly; a nil user is rejected
// with ErrUnauthenticated before the store is touched.
package lifecycle

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
)

// Options configures a Service.
type Options struct {
	// Threshold is the minimum similarity score for a match.
	// Zero or negative means similarity.DefaultThreshold.
	Threshold float64

	// Timeout bounds each store call. Zero means no timeout beyond the caller's context.
	Timeout time.Duration

	// Sink receives workflow events. Nil discards them.
	Sink EventSink
}

// Service runs issue workflow operations against a store.
type Service struct {
	store     store.Store
	threshold float64
	timeout   time.Duration
	sink      EventSink
	validate  *validator.Validate
}

// NewService creates a Service backed by s.
func NewService(s store.Store, opts Options) *Service {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = similarity.DefaultThreshold
	}
	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Service{
		store:     s,
		threshold: threshold,
		timeout:   opts.Timeout,
		sink:      sink,
		validate:  v,
	}
}

// Threshold returns the similarity cut-off used by CheckDuplicates.
func (s *Service) Threshold() float64 { return s.threshold }

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) requireUser(user *models.User, op string) error {
	if user == nil || user.UID == "" {
		s.sink.Emit(Event{Type: EventUnauthenticated, Fields: map[string]any{"op": op}})
		return ErrUnauthenticated
	}
	return nil
}

// Validate checks the candidate's required fields.
func (s *Service) Validate(c models.Candidate) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.AssignedTo = strings.TrimSpace(c.AssignedTo)
	if err := s.validate.Struct(c); err != nil {
		return newValidationError(err)
	}
	return nil
}

// CheckDuplicates ranks every existing issue against the candidate and returns
// the matches at or above the threshold, best first. A blank title has nothing
// to compare and returns no matches without fetching.
func (s *Service) CheckDuplicates(ctx context.Context, user *models.User, c models.Candidate) ([]similarity.Match, error) {
	if err := s.requireUser(user, "check duplicates"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Title) == "" {
		return nil, nil
	}

	s.sink.Emit(Event{Type: EventDuplicateCheckStarted, UserID: user.UID, Fields: map[string]any{"title": c.Title}})

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.store.ListIssues(ctx, store.IssueListFilter{})
	if err != nil {
		err = store.Wrap("list issues", err)
		s.sink.Emit(Event{Type: EventStoreFailed, UserID: user.UID, Err: err, Fields: map[string]any{"op": "check duplicates"}})
		return nil, err
	}

	matches := similarity.Rank(c, existing, s.threshold)
	if len(matches) > 0 {
		s.sink.Emit(Event{Type: EventDuplicatesFound, UserID: user.UID, IssueID: matches[0].Issue.ID, Fields: map[string]any{
			"count":     len(matches),
			"top_score": matches[0].Score,
			"compared":  len(existing),
		}})
	}
	return matches, nil
}

// Create persists the candidate as a new Open issue owned by user. The store
// assigns the ID and creation time.
func (s *Service) Create(ctx context.Context, user *models.User, c models.Candidate) (*models.Issue, error) {
	if err := s.requireUser(user, "create issue"); err != nil {
		return nil, err
	}
	if user.Email == "" {
		// created_by is the creator's email; a session without one cannot own issues.
		return nil, ErrUnauthenticated
	}
	if err := s.Validate(c); err != nil {
		return nil, err
	}

	issue := &models.Issue{
		Title:       strings.TrimSpace(c.Title),
		Description: strings.TrimSpace(c.Description),
		Priority:    c.Priority,
		Status:      models.IssueStatusOpen,
		AssignedTo:  strings.TrimSpace(c.AssignedTo),
		CreatedBy:   user.Email,
		UserID:      user.UID,
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.store.CreateIssue(ctx, issue)
	if err != nil {
		err = store.Wrap("create issue", err)
		s.sink.Emit(Event{Type: EventIssueCreateFailed, UserID: user.UID, Err: err})
		return nil, err
	}
	issue.ID = id

	s.sink.Emit(Event{Type: EventIssueCreated, IssueID: id, UserID: user.UID, Fields: map[string]any{
		"priority": string(issue.Priority),
	}})
	return issue, nil
}

// ChangeStatus moves the held issue to status to. The transition is checked
// before any store call; when it is rejected or the store fails, issue keeps
// its prior status.
func (s *Service) ChangeStatus(ctx context.Context, user *models.User, issue *models.Issue, to models.IssueStatus) error {
	if err := s.requireUser(user, "change status"); err != nil {
		return err
	}

	from := issue.Status
	if err := CheckTransition(from, to); err != nil {
		s.sink.Emit(Event{Type: EventTransitionRejected, IssueID: issue.ID, UserID: user.UID, Err: err, Fields: map[string]any{
			"from": string(from),
			"to":   string(to),
		}})
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.UpdateIssue(ctx, issue.ID, store.IssueUpdate{Status: &to}); err != nil {
		err = store.Wrap("update issue", err)
		s.sink.Emit(Event{Type: EventStoreFailed, IssueID: issue.ID, UserID: user.UID, Err: err, Fields: map[string]any{"op": "change status"}})
		return err
	}

	issue.Status = to
	s.sink.Emit(Event{Type: EventStatusChanged, IssueID: issue.ID, UserID: user.UID, Fields: map[string]any{
		"from": string(from),
		"to":   string(to),
	}})
	return nil
}

// List returns issues newest first, filtered by status and priority.
func (s *Service) List(ctx context.Context, user *models.User, filter store.IssueListFilter) ([]*models.Issue, error) {
	if err := s.requireUser(user, "list issues"); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, store.Wrap("list issues", err)
	}
	return issues, nil
}

// Get fetches a single issue.
func (s *Service) Get(ctx context.Context, user *models.User, id string) (*models.Issue, error) {
	if err := s.requireUser(user, "get issue"); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, store.Wrap("get issue", err)
	}
	return issue, nil
}

// Delete removes an issue.
func (s *Service) Delete(ctx context.Context, user *models.User, id string) error {
	if err := s.requireUser(user, "delete issue"); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.DeleteIssue(ctx, id); err != nil {
		err = store.Wrap("delete issue", err)
		s.sink.Emit(Event{Type: EventStoreFailed, IssueID: id, UserID: user.UID, Err: err, Fields: map[string]any{"op": "delete issue"}})
		return err
	}
	s.sink.Emit(Event{Type: EventIssueDeleted, IssueID: id, UserID: user.UID})
	return nil
}
