package core

import (
	"time"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/session"
	"github.com/danchege/Alchemist/internal/store"
	"github.com/danchege/Alchemist/internal/table"
	"github.com/danchege/Alchemist/internal/view"
)

// PageResult is one page of rows ready for JSON.
type PageResult struct {
	Columns    []table.Column   `json:"columns"`
	Rows       []map[string]any `json:"rows"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

func newPageResult(p *store.Page) *PageResult {
	return &PageResult{
		Columns:    p.Columns,
		Rows:       p.Records(),
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

// SessionSummary describes a session and the first page of its current
// view.
type SessionSummary struct {
	SessionID string          `json:"session_id"`
	FileName  string          `json:"filename"`
	Mode      store.Mode      `json:"mode"`
	Shape     table.Shape     `json:"shape"`
	Columns   []table.Column  `json:"columns"`
	CreatedAt time.Time       `json:"created_at"`
	View      view.State      `json:"view"`
	History   session.History `json:"history"`
	Preview   *PageResult     `json:"preview"`
}

// MutationResult is returned by apply, merge, undo, redo and reset.
type MutationResult struct {
	Entry     *store.Snapshot `json:"entry,omitempty"`
	Summaries []ops.Summary   `json:"summaries,omitempty"`
	Shape     table.Shape     `json:"shape"`
	Columns   []table.Column  `json:"columns"`
	History   session.History `json:"history"`
	Preview   *PageResult     `json:"preview"`
}

// PreviewResult shows what a batch would do to a sample.
type PreviewResult struct {
	Before    table.Shape      `json:"before"`
	After     table.Shape      `json:"after"`
	Summaries []ops.Summary    `json:"summaries"`
	Columns   []table.Column   `json:"columns"`
	Rows      []map[string]any `json:"rows"`
}

// ClusterResult lists suggested merges for one column.
type ClusterResult struct {
	Column      string               `json:"column"`
	MaxUnique   int                  `json:"max_unique"`
	Suggestions []cluster.Suggestion `json:"suggestions"`
}
