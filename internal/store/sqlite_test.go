package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issueboard/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newIssue(title string) *models.Issue {
	return &models.Issue{
		Title:       title,
		Description: "desc for " + title,
		Priority:    models.IssuePriorityMedium,
		Status:      models.IssueStatusOpen,
		AssignedTo:  "dev@example.com",
		CreatedBy:   "alice@example.com",
		UserID:      "uid-alice",
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Issue CRUD ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("Fix bug")
	issue.Priority = models.IssuePriorityHigh
	id, err := s.CreateIssue(ctx, issue)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, issue.ID)
	assert.False(t, issue.CreatedAt.IsZero())

	got, err := s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fix bug", got.Title)
	assert.Equal(t, "desc for Fix bug", got.Description)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Equal(t, models.IssuePriorityHigh, got.Priority)
	assert.Equal(t, "dev@example.com", got.AssignedTo)
	assert.Equal(t, "alice@example.com", got.CreatedBy)
	assert.Equal(t, "uid-alice", got.UserID)
	assert.True(t, issue.CreatedAt.Equal(got.CreatedAt))

	status := models.IssueStatusInProgress
	require.NoError(t, s.UpdateIssue(ctx, id, IssueUpdate{Status: &status}))

	got, err = s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Equal(t, "Fix bug", got.Title, "update merges only the given fields")

	require.NoError(t, s.DeleteIssue(ctx, id))
	_, err = s.GetIssue(ctx, id)
	assert.True(t, IsNotFound(err))
}

func TestCreateIssue_StoreAssignsIDAndCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("Preset fields")
	issue.ID = "client-chosen"
	issue.CreatedAt = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := s.CreateIssue(ctx, issue)
	require.NoError(t, err)
	assert.NotEqual(t, "client-chosen", id)
	assert.NotEqual(t, 2001, issue.CreatedAt.Year())
}

func TestCreateIssue_UniqueIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := s.CreateIssue(ctx, newIssue("same title"))
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCreateIssue_RequiresIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("anonymous")
	issue.UserID = ""
	_, err := s.CreateIssue(ctx, issue)
	require.Error(t, err)
	assert.True(t, IsPermission(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Permission())

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestListIssues_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.CreateIssue(ctx, newIssue(title))
		require.NoError(t, err)
	}

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "third", issues[0].Title)
	assert.Equal(t, "second", issues[1].Title)
	assert.Equal(t, "first", issues[2].Title)
	assert.True(t, issues[0].CreatedAt.After(issues[1].CreatedAt))
}

func TestListIssues_SameTimestampStillOrdered(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := s.CreateIssue(ctx, newIssue(title))
		require.NoError(t, err)
	}

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "c", issues[0].Title)
	assert.Equal(t, "a", issues[2].Title)
}

func TestListIssues_Filters(t *testing.T) {
	s := newTestStore(t)
	s.now = stepClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	low := newIssue("low open")
	low.Priority = models.IssuePriorityLow
	_, err := s.CreateIssue(ctx, low)
	require.NoError(t, err)

	high := newIssue("high open")
	high.Priority = models.IssuePriorityHigh
	_, err = s.CreateIssue(ctx, high)
	require.NoError(t, err)

	highDone := newIssue("high in progress")
	highDone.Priority = models.IssuePriorityHigh
	_, err = s.CreateIssue(ctx, highDone)
	require.NoError(t, err)
	status := models.IssueStatusInProgress
	require.NoError(t, s.UpdateIssue(ctx, highDone.ID, IssueUpdate{Status: &status}))

	issues, err := s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusOpen})
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	issues, err = s.ListIssues(ctx, IssueListFilter{Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "high in progress", issues[0].Title)

	issues, err = s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusOpen, Priority: models.IssuePriorityHigh})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "high open", issues[0].Title)

	issues, err = s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusDone})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestUpdateIssue_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status := models.IssueStatusDone
	err := s.UpdateIssue(ctx, "nope", IssueUpdate{Status: &status})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	err = s.UpdateIssue(ctx, "nope", IssueUpdate{})
	assert.True(t, IsNotFound(err))
}

func TestUpdateIssue_EmptyUpdateIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateIssue(ctx, newIssue("untouched"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateIssue(ctx, id, IssueUpdate{}))

	got, err := s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
}

func TestDeleteIssue_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteIssue(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

// --- Users ---

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Account{User: models.User{UID: "u1", Email: "bob@example.com"}, PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, a))
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.Email)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, IsNotFound(err))
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.Account{User: models.User{UID: "u1", Email: "dup@example.com"}, PasswordHash: "h"}))
	err := s.CreateUser(ctx, &models.Account{User: models.User{UID: "u2", Email: "dup@example.com"}, PasswordHash: "h"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	plain := assert.AnError
	wrapped := Wrap("list issues", plain)
	var se *Error
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, "list issues", se.Op)
	assert.ErrorIs(t, wrapped, plain)

	assert.Same(t, wrapped, Wrap("other", wrapped))
}
