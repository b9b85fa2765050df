package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	issues []*models.Issue

	// Track calls for verification.
	calls   []string
	created []*models.Issue
	updates map[string]store.IssueUpdate

	// Optional error injection.
	listErr   error
	createErr error
	updateErr error
	deleteErr error

	// block, when set, makes ListIssues wait until the context is done.
	block bool
	// onList runs inside ListIssues before it returns.
	onList func()
}

func (m *mockStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockStore) CreateIssue(_ context.Context, issue *models.Issue) (string, error) {
	m.record("CreateIssue")
	if m.createErr != nil {
		return "", m.createErr
	}
	issue.ID = fmt.Sprintf("issue-%d", len(m.issues)+1)
	issue.CreatedAt = time.Now()
	m.issues = append([]*models.Issue{issue}, m.issues...)
	m.created = append(m.created, issue)
	return issue.ID, nil
}

func (m *mockStore) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	m.record("GetIssue")
	for _, i := range m.issues {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, &store.Error{Op: "get issue " + id, Err: store.ErrNotFound}
}

func (m *mockStore) ListIssues(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	m.record("ListIssues")
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.onList != nil {
		m.onList()
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Issue
	for _, i := range m.issues {
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && i.Priority != filter.Priority {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

func (m *mockStore) UpdateIssue(_ context.Context, id string, update store.IssueUpdate) error {
	m.record("UpdateIssue")
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.updates == nil {
		m.updates = make(map[string]store.IssueUpdate)
	}
	m.updates[id] = update
	return nil
}

func (m *mockStore) DeleteIssue(_ context.Context, id string) error {
	m.record("DeleteIssue")
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, issue := range m.issues {
		if issue.ID == id {
			m.issues = append(m.issues[:i], m.issues[i+1:]...)
			return nil
		}
	}
	return &store.Error{Op: "delete issue " + id, Err: store.ErrNotFound}
}

func (m *mockStore) CreateUser(_ context.Context, _ *models.Account) error { return nil }
func (m *mockStore) GetUser(_ context.Context, uid string) (*models.Account, error) {
	return nil, &store.Error{Op: "get user " + uid, Err: store.ErrNotFound}
}
func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*models.Account, error) {
	return nil, &store.Error{Op: "get user " + email, Err: store.ErrNotFound}
}
func (m *mockStore) Migrate(_ context.Context) error { return nil }
func (m *mockStore) Close() error                    { return nil }

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var alice = &models.User{UID: "uid-alice", Email: "alice@example.com"}

func existingIssue(id, title, desc string) *models.Issue {
	return &models.Issue{
		ID:          id,
		Title:       title,
		Description: desc,
		Priority:    models.IssuePriorityMedium,
		Status:      models.IssueStatusOpen,
		AssignedTo:  "bob",
		CreatedBy:   "bob@example.com",
		UserID:      "uid-bob",
	}
}

func validCandidate(title, desc string) models.Candidate {
	return models.Candidate{
		Title:       title,
		Description: desc,
		Priority:    models.IssuePriorityMedium,
		AssignedTo:  "carol@example.com",
	}
}
