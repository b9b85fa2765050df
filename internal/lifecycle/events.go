package lifecycle

import (
	"context"
	"log/slog"
)

// EventType identifies something that happened in the issue workflow.
type EventType string

const (
	EventDuplicateCheckStarted EventType = "duplicate_check_started"
	EventDuplicatesFound       EventType = "duplicates_found"
	EventIssueCreated          EventType = "issue_created"
	EventIssueCreateFailed     EventType = "issue_create_failed"
	EventStatusChanged         EventType = "status_changed"
	EventTransitionRejected    EventType = "transition_rejected"
	EventIssueDeleted          EventType = "issue_deleted"
	EventUnauthenticated       EventType = "unauthenticated"
	EventStoreFailed           EventType = "store_failed"
)

// Event is a structured record of a workflow step.
type Event struct {
	Type    EventType
	IssueID string
	UserID  string
	Fields  map[string]any
	Err     error
}

// EventSink receives workflow events.
type EventSink interface {
	Emit(Event)
}

// SlogSink writes events to a slog.Logger. Failures log at warn level.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger, or to slog.Default() when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger}
}

func (s *SlogSink) Emit(e Event) {
	attrs := []slog.Attr{slog.String("event", string(e.Type))}
	if e.IssueID != "" {
		attrs = append(attrs, slog.String("issue_id", e.IssueID))
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelDebug
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
		level = slog.LevelWarn
	}
	s.Logger.LogAttrs(context.Background(), level, "issue workflow", attrs...)
}

type discardSink struct{}

func (discardSink) Emit(Event) {}
