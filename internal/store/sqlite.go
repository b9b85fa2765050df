package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issueboard/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serializes API requests instead of failing with "database is locked".
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// newULID generates a new ULID string. Make is monotonic within a millisecond.
func newULID() string {
	return ulid.Make().String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

const issueColumns = `id, title, description, priority, status, assigned_to, created_by, user_id, created_at`

// CreateIssue persists a new issue. The store assigns ID and CreatedAt; any
// caller-supplied values for those fields are overwritten.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) (string, error) {
	if issue.UserID == "" || issue.CreatedBy == "" {
		return "", &Error{Op: "create issue", Err: ErrPermissionDenied}
	}

	issue.ID = newULID()
	issue.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, string(issue.Priority), string(issue.Status),
		issue.AssignedTo, issue.CreatedBy, issue.UserID, issue.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", &Error{Op: "create issue", Err: err}
	}
	return issue.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var priority, status string
	var createdAt int64
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &priority, &status,
		&issue.AssignedTo, &issue.CreatedBy, &issue.UserID, &createdAt); err != nil {
		return nil, err
	}
	issue.Priority = models.IssuePriority(priority)
	issue.Status = models.IssueStatus(status)
	issue.CreatedAt = time.Unix(0, createdAt).UTC()
	return issue, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Op: "get issue " + id, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "get issue", Err: err}
	}
	return issue, nil
}

// ListIssues returns issues newest first, optionally filtered by status and priority.
func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list issues", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, &Error{Op: "scan issue", Err: err}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list issues", Err: err}
	}
	return issues, nil
}

// UpdateIssue merges the non-nil fields of update into issue id.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, update IssueUpdate) error {
	var sets []string
	var args []any
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}

	if len(sets) == 0 {
		// Nothing to merge, but the record still has to exist.
		_, err := s.GetIssue(ctx, id)
		return err
	}

	args = append(args, id)
	result, err := s.db.ExecContext(ctx, `UPDATE issues SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return &Error{Op: "update issue", Err: err}
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &Error{Op: "update issue " + id, Err: ErrNotFound}
	}
	return nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return &Error{Op: "delete issue", Err: err}
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &Error{Op: "delete issue " + id, Err: ErrNotFound}
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, account *models.Account) error {
	if account.UID == "" || account.Email == "" {
		return &Error{Op: "create user", Err: errors.New("uid and email are required")}
	}
	account.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		account.UID, account.Email, account.PasswordHash, account.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &Error{Op: "create user " + account.Email, Err: ErrConflict}
		}
		return &Error{Op: "create user", Err: err}
	}
	return nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var createdAt int64
	if err := row.Scan(&a.UID, &a.Email, &a.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	return a, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uid, email, password_hash, created_at FROM users WHERE uid = ?`, uid)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Op: "get user " + uid, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "get user", Err: err}
	}
	return a, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uid, email, password_hash, created_at FROM users WHERE email = ?`, email)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &Error{Op: "get user " + email, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "get user", Err: err}
	}
	return a, nil
}
