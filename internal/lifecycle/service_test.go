package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

func newTestService(ms *mockStore) (*Service, *recordingSink) {
	sink := &recordingSink{}
	return NewService(ms, Options{Sink: sink}), sink
}

func TestNewService_DefaultThreshold(t *testing.T) {
	svc := NewService(&mockStore{}, Options{})
	assert.Equal(t, 0.5, svc.Threshold())

	svc = NewService(&mockStore{}, Options{Threshold: 0.3})
	assert.Equal(t, 0.3, svc.Threshold())
}

func TestCheckDuplicates_Unauthenticated(t *testing.T) {
	ms := &mockStore{}
	svc, sink := newTestService(ms)

	_, err := svc.CheckDuplicates(context.Background(), nil, validCandidate("Login broken", "x"))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, ms.calls, "no fetch without a user")
	assert.Equal(t, []EventType{EventUnauthenticated}, sink.types())
}

func TestCheckDuplicates_FindsMatches(t *testing.T) {
	ms := &mockStore{issues: []*models.Issue{
		existingIssue("1", "Login button broken", "The login button does nothing on click"),
		existingIssue("2", "Fix typo in footer", "Footer text misspelled"),
	}}
	svc, sink := newTestService(ms)

	matches, err := svc.CheckDuplicates(context.Background(), alice, validCandidate("Login button broken", "The login button does nothing"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].Issue.ID)
	assert.Equal(t, []string{"ListIssues"}, ms.calls)
	assert.Contains(t, sink.types(), EventDuplicatesFound)
}

func TestCheckDuplicates_NoMatches(t *testing.T) {
	ms := &mockStore{issues: []*models.Issue{
		existingIssue("2", "Fix typo in footer", "Footer text misspelled"),
	}}
	svc, sink := newTestService(ms)

	matches, err := svc.CheckDuplicates(context.Background(), alice, validCandidate("Add dark mode", "Support a dark theme"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotContains(t, sink.types(), EventDuplicatesFound)
}

func TestCheckDuplicates_BlankTitleSkipsFetch(t *testing.T) {
	ms := &mockStore{}
	svc, _ := newTestService(ms)

	matches, err := svc.CheckDuplicates(context.Background(), alice, validCandidate("   ", "desc"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, ms.calls)
}

func TestCheckDuplicates_StoreErrorWrapped(t *testing.T) {
	ms := &mockStore{listErr: errors.New("network down")}
	svc, sink := newTestService(ms)

	_, err := svc.CheckDuplicates(context.Background(), alice, validCandidate("title", "desc"))
	require.Error(t, err)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "network down")
	assert.Contains(t, sink.types(), EventStoreFailed)
}

func TestCheckDuplicates_Timeout(t *testing.T) {
	ms := &mockStore{block: true}
	svc := NewService(ms, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.CheckDuplicates(context.Background(), alice, validCandidate("title", "desc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCheckDuplicates_Cancellation(t *testing.T) {
	ms := &mockStore{block: true}
	svc := NewService(ms, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := svc.CheckDuplicates(ctx, alice, validCandidate("title", "desc"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreate_Unauthenticated(t *testing.T) {
	ms := &mockStore{}
	svc, _ := newTestService(ms)

	_, err := svc.Create(context.Background(), nil, validCandidate("title", "desc"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Create(context.Background(), &models.User{UID: "u"}, validCandidate("title", "desc"))
	assert.ErrorIs(t, err, ErrUnauthenticated, "an identity without email cannot own issues")

	assert.Empty(t, ms.calls)
}

func TestCreate_SetsOwnershipAndOpenStatus(t *testing.T) {
	ms := &mockStore{}
	svc, sink := newTestService(ms)

	c := validCandidate("  Crash on save ", "Saving crashes")
	c.Priority = models.IssuePriorityHigh
	issue, err := svc.Create(context.Background(), alice, c)
	require.NoError(t, err)

	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, "Crash on save", issue.Title)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, models.IssuePriorityHigh, issue.Priority)
	assert.Equal(t, "alice@example.com", issue.CreatedBy)
	assert.Equal(t, "uid-alice", issue.UserID)
	assert.Equal(t, "carol@example.com", issue.AssignedTo)

	require.Len(t, ms.created, 1)
	assert.Equal(t, models.IssueStatusOpen, ms.created[0].Status)
	assert.Contains(t, sink.types(), EventIssueCreated)
}

func TestCreate_Validation(t *testing.T) {
	ms := &mockStore{}
	svc, _ := newTestService(ms)

	_, err := svc.Create(context.Background(), alice, models.Candidate{Title: "only title"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "description is required")
	assert.Contains(t, verr.Error(), "assigned_to is required")
	assert.Contains(t, verr.Error(), "priority must be one of")
	assert.Empty(t, ms.calls)

	_, err = svc.Create(context.Background(), alice, validCandidate("   ", "desc"))
	assert.ErrorAs(t, err, &verr, "whitespace-only title is blank")
}

func TestCreate_StoreErrorsKeepKind(t *testing.T) {
	ms := &mockStore{createErr: &store.Error{Op: "create issue", Err: store.ErrPermissionDenied}}
	svc, sink := newTestService(ms)

	_, err := svc.Create(context.Background(), alice, validCandidate("t", "d"))
	require.Error(t, err)
	assert.True(t, store.IsPermission(err))
	assert.Contains(t, sink.types(), EventIssueCreateFailed)

	ms.createErr = errors.New("boom")
	_, err = svc.Create(context.Background(), alice, validCandidate("t", "d"))
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Permission())
}

func TestChangeStatus_OpenToDoneRejected(t *testing.T) {
	ms := &mockStore{}
	svc, sink := newTestService(ms)
	issue := existingIssue("1", "t", "d")

	err := svc.ChangeStatus(context.Background(), alice, issue, models.IssueStatusDone)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Empty(t, ms.calls, "rejected before any store call")
	assert.Equal(t, []EventType{EventTransitionRejected}, sink.types())
}

func TestChangeStatus_AllowedTransitions(t *testing.T) {
	steps := []models.IssueStatus{
		models.IssueStatusInProgress,
		models.IssueStatusDone,
		models.IssueStatusInProgress,
		models.IssueStatusOpen,
		models.IssueStatusInProgress,
		models.IssueStatusDone,
		models.IssueStatusOpen,
	}

	ms := &mockStore{}
	svc, _ := newTestService(ms)
	issue := existingIssue("1", "t", "d")

	for _, to := range steps {
		require.NoError(t, svc.ChangeStatus(context.Background(), alice, issue, to))
		assert.Equal(t, to, issue.Status)
		require.NotNil(t, ms.updates["1"].Status)
		assert.Equal(t, to, *ms.updates["1"].Status)
	}
}

func TestChangeStatus_StoreFailureKeepsStatus(t *testing.T) {
	ms := &mockStore{updateErr: &store.Error{Op: "update issue", Err: store.ErrNotFound}}
	svc, _ := newTestService(ms)
	issue := existingIssue("1", "t", "d")

	err := svc.ChangeStatus(context.Background(), alice, issue, models.IssueStatusInProgress)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
}

func TestChangeStatus_Unauthenticated(t *testing.T) {
	ms := &mockStore{}
	svc, _ := newTestService(ms)
	issue := existingIssue("1", "t", "d")

	err := svc.ChangeStatus(context.Background(), nil, issue, models.IssueStatusInProgress)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, ms.calls)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
}

func TestListGetDelete(t *testing.T) {
	ms := &mockStore{issues: []*models.Issue{
		existingIssue("1", "a", "d"),
		existingIssue("2", "b", "d"),
	}}
	ms.issues[1].Priority = models.IssuePriorityHigh
	svc, sink := newTestService(ms)
	ctx := context.Background()

	_, err := svc.List(ctx, nil, store.IssueListFilter{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	issues, err := svc.List(ctx, alice, store.IssueListFilter{Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "2", issues[0].ID)

	got, err := svc.Get(ctx, alice, "1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	_, err = svc.Get(ctx, alice, "missing")
	assert.True(t, store.IsNotFound(err))

	require.NoError(t, svc.Delete(ctx, alice, "1"))
	assert.Contains(t, sink.types(), EventIssueDeleted)
	assert.True(t, store.IsNotFound(svc.Delete(ctx, alice, "1")))
	assert.ErrorIs(t, svc.Delete(ctx, nil, "2"), ErrUnauthenticated)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"unauthenticated", ErrUnauthenticated, KindUnauthenticated},
		{"transition", CheckTransition(models.IssueStatusOpen, models.IssueStatusDone), KindInvalidTransition},
		{"bad status", CheckTransition(models.IssueStatusOpen, "nope"), KindValidation},
		{"validation", &ValidationError{Fields: []string{"title is required"}}, KindValidation},
		{"busy", ErrBusy, KindBusy},
		{"form changed", ErrFormChanged, KindBusy},
		{"permission", &store.Error{Op: "create issue", Err: store.ErrPermissionDenied}, KindPermission},
		{"not found", &store.Error{Op: "get issue", Err: store.ErrNotFound}, KindNotFound},
		{"store", &store.Error{Op: "list issues", Err: errors.New("disk I/O error")}, KindStore},
		{"other", errors.New("weird"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg := Describe(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.NotEmpty(t, msg)
		})
	}

	kind, msg := Describe(&store.Error{Op: "list issues", Err: errors.New("disk I/O error")})
	assert.Equal(t, KindStore, kind)
	assert.Contains(t, msg, "disk I/O error", "generic store failures surface their message")

	kind, msg = Describe(nil)
	assert.Empty(t, kind)
	assert.Empty(t, msg)
}
