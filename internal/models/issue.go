package models

import (
	"fmt"
	"strings"
	"time"
)

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusDone       IssueStatus = "done"
)

// IssueStatuses lists every status in workflow order.
var IssueStatuses = []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusDone}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusDone:
		return true
	}
	return false
}

// Label returns the human-readable form ("In Progress").
func (s IssueStatus) Label() string {
	switch s {
	case IssueStatusOpen:
		return "Open"
	case IssueStatusInProgress:
		return "In Progress"
	case IssueStatusDone:
		return "Done"
	default:
		return string(s)
	}
}

// ParseIssueStatus accepts both stored ("in_progress") and display ("In Progress") forms.
func ParseIssueStatus(s string) (IssueStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "open":
		return IssueStatusOpen, nil
	case "in_progress", "inprogress":
		return IssueStatusInProgress, nil
	case "done":
		return IssueStatusDone, nil
	}
	return "", fmt.Errorf("invalid status %q (use open, in_progress, done)", s)
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// Label returns the capitalized form ("Medium").
func (p IssuePriority) Label() string {
	switch p {
	case IssuePriorityLow:
		return "Low"
	case IssuePriorityMedium:
		return "Medium"
	case IssuePriorityHigh:
		return "High"
	default:
		return string(p)
	}
}

// ParseIssuePriority parses a priority case-insensitively.
func ParseIssuePriority(s string) (IssuePriority, error) {
	p := IssuePriority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q (use low, medium, high)", s)
	}
	return p, nil
}

// Issue represents a tracked issue.
type Issue struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    IssuePriority `json:"priority"`
	Status      IssueStatus   `json:"status"`
	AssignedTo  string        `json:"assigned_to"`
	CreatedBy   string        `json:"created_by"` // creator's email
	UserID      string        `json:"user_id"`    // creator's uid, used by store access rules
	CreatedAt   time.Time     `json:"created_at"`
}

// Candidate is the form state of an issue that has not been created yet.
type Candidate struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description" validate:"required"`
	Priority    IssuePriority `json:"priority" validate:"oneof=low medium high"`
	AssignedTo  string        `json:"assigned_to" validate:"required"`
}
