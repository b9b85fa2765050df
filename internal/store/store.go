package store

import (
	"context"

	"github.com/joescharf/issueboard/internal/models"
)

// IssueListFilter specifies optional equality filters for listing issues.
// The zero value lists everything.
type IssueListFilter struct {
	Status   models.IssueStatus
	Priority models.IssuePriority
}

// IssueUpdate holds the fields to merge into an existing issue.
// Nil fields are left untouched.
type IssueUpdate struct {
	Status *models.IssueStatus
}

// Empty reports whether the update carries no changes.
func (u IssueUpdate) Empty() bool {
	return u.Status == nil
}

// Store defines the persistence interface for issueboard.
type Store interface {
	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) (string, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, update IssueUpdate) error
	DeleteIssue(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, account *models.Account) error
	GetUser(ctx context.Context, uid string) (*models.Account, error)
	GetUserByEmail(ctx context.Context, email string) (*models.Account, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
