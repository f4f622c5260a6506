// Package audit records what was done to each session: uploads, operation
// batches, history moves, merges and exports. Entries go to an in-process
// ring or to Postgres, and a retention job purges old ones.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of event being recorded.
type Action string

const (
	ActionCreate Action = "session_create"
	ActionApply  Action = "apply"
	ActionUndo   Action = "undo"
	ActionRedo   Action = "redo"
	ActionReset  Action = "reset"
	ActionMerge  Action = "merge"
	ActionExport Action = "export"
	ActionClose  Action = "session_close"
)

// Severity ranks actions by how much data they change.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityOf(action Action) Severity {
	switch action {
	case ActionApply, ActionMerge:
		return SeverityHigh
	case ActionReset:
		return SeverityCritical
	case ActionExport, ActionCreate, ActionClose:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Entry is one audit record.
type Entry struct {
	ID           string          `json:"id"`
	Action       Action          `json:"action"`
	Severity     Severity        `json:"severity"`
	SessionID    string          `json:"sessionId"`
	FileName     string          `json:"fileName,omitempty"`
	Description  string          `json:"description,omitempty"`
	Operations   json.RawMessage `json:"operations,omitempty"`
	RowsAffected int             `json:"rowsAffected,omitempty"`
	RowsAfter    int             `json:"rowsAfter"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Params describes an event to record.
type Params struct {
	Action       Action
	SessionID    string
	FileName     string
	Description  string
	Operations   any
	RowsAffected int
	RowsAfter    int
	IPAddress    string
	UserAgent    string
	RequestID    string
}

func newEntry(p Params) Entry {
	e := Entry{
		ID:           uuid.NewString(),
		Action:       p.Action,
		Severity:     severityOf(p.Action),
		SessionID:    p.SessionID,
		FileName:     p.FileName,
		Description:  p.Description,
		RowsAffected: p.RowsAffected,
		RowsAfter:    p.RowsAfter,
		IPAddress:    p.IPAddress,
		UserAgent:    p.UserAgent,
		RequestID:    p.RequestID,
		CreatedAt:    time.Now().UTC(),
	}
	if p.Operations != nil {
		if b, err := json.Marshal(p.Operations); err == nil {
			e.Operations = b
		}
	}
	return e
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	SessionID string
	Action    Action
	Since     time.Time
	Limit     int
	Offset    int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) matches(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// Recorder stores audit entries.
type Recorder interface {
	Record(ctx context.Context, p Params) (*Entry, error)
	// List returns matching entries, newest first.
	List(ctx context.Context, f Filter) ([]Entry, error)
	// Purge deletes up to batchSize entries created before cutoff and
	// reports how many were removed.
	Purge(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	Close()
}
