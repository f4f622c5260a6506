// Package store holds a session's dataset behind one interface with two
// implementations: an in-memory table for ordinary files and a paged
// SQLite table for large delimited files. Both implementations share the
// same filter, sort and search semantics.
package store

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

// Mode is fixed when a store is opened.
type Mode string

const (
	ModeMemory Mode = "IN_MEMORY"
	ModeLarge  Mode = "LARGE_FILE"
)

// Store is a session's dataset.
//
// A Store is not safe for concurrent use; callers serialize access per
// session.
type Store interface {
	Mode() Mode
	Columns() []table.Column
	Shape() table.Shape

	Page(ctx context.Context, q Query) (*Page, error)
	Sample(ctx context.Context, n int) (*table.Table, error)
	Profile(ctx context.Context, column string, topN int) (*Profile, error)
	Frequencies(ctx context.Context, column string, limit int) ([]cluster.Frequency, error)
	Info(ctx context.Context) (*Info, error)
	Export(ctx context.Context, w io.Writer, format Format, view *View, name string) error

	// Supports reports whether op can run in this store.
	Supports(op ops.Operation) error

	// Apply runs a batch as one unit and returns the snapshot that undoes it.
	Apply(ctx context.Context, batch []ops.Operation) (Snapshot, []ops.Summary, error)

	// Undo restores the state captured by entry. remaining holds the
	// undo entries still below it, oldest first. The returned snapshot
	// redoes entry.
	Undo(ctx context.Context, entry Snapshot, remaining []Snapshot) (Snapshot, error)

	// Redo re-applies entry and returns the snapshot that undoes it again.
	Redo(ctx context.Context, entry Snapshot) (Snapshot, error)

	// Evict is called when entry falls off the bottom of the undo history.
	Evict(ctx context.Context, entry Snapshot) error

	// Reset restores the table captured at load.
	Reset(ctx context.Context) error

	Close() error
}

// Snapshot is one history entry.
//
// In memory mode it holds the table on the other side of the operation.
// In large-file mode only the operations are kept and state is rebuilt by
// replay.
type Snapshot struct {
	Description string          `json:"description"`
	Operations  []ops.Operation `json:"operations"`
	Time        time.Time       `json:"timestamp"`

	// ResultingShape is the table shape once the operations have run.
	ResultingShape table.Shape `json:"resulting_shape"`

	data *table.Table
}

func newSnapshot(batch []ops.Operation, resulting table.Shape, data *table.Table) Snapshot {
	return Snapshot{
		Description:    ops.DescribeAll(batch),
		Operations:     batch,
		Time:           time.Now().UTC(),
		ResultingShape: resulting,
		data:           data,
	}
}

// Page is one page of rows from a view.
type Page struct {
	Columns    []table.Column
	Rows       [][]table.Value
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Records renders the rows as column-name keyed maps.
func (p *Page) Records() []map[string]any {
	return Records(p.Columns, p.Rows)
}

// Records renders rows as column-name keyed maps.
func Records(cols []table.Column, rows [][]table.Value) []map[string]any {
	out := make([]map[string]any, len(rows))
	for r, row := range rows {
		rec := make(map[string]any, len(cols))
		for c, col := range cols {
			rec[col.Name] = row[c].Interface()
		}
		out[r] = rec
	}
	return out
}

// Profile summarizes one column.
type Profile struct {
	Column      string              `json:"column"`
	Type        table.ColumnType    `json:"type"`
	TotalRows   int                 `json:"total_rows"`
	NullRows    int                 `json:"null_rows"`
	EmptyRows   int                 `json:"empty_rows"`
	UniqueCount int                 `json:"unique_count"`
	TopValues   []cluster.Frequency `json:"top_values"`
}

// Profile limits.
const (
	DefaultTopN = 20
	MaxTopN     = 100
)

// ClampTopN bounds a requested top-values count.
func ClampTopN(n int) int {
	switch {
	case n <= 0:
		return DefaultTopN
	case n > MaxTopN:
		return MaxTopN
	}
	return n
}

// Info describes the whole dataset.
type Info struct {
	Mode            Mode                        `json:"mode"`
	Shape           table.Shape                 `json:"shape"`
	Columns         []table.Column              `json:"columns"`
	Dtypes          map[string]table.ColumnType `json:"dtypes"`
	Missing         map[string]int              `json:"missing_values"`
	NumericColumns  []string                    `json:"numeric_columns"`
	TextColumns     []string                    `json:"text_columns"`
	DatetimeColumns []string                    `json:"datetime_columns"`
	BooleanColumns  []string                    `json:"boolean_columns"`
}

func newInfo(mode Mode, shape table.Shape, cols []table.Column, missing []int) *Info {
	info := &Info{
		Mode:            mode,
		Shape:           shape,
		Columns:         cols,
		Dtypes:          make(map[string]table.ColumnType, len(cols)),
		Missing:         make(map[string]int, len(cols)),
		NumericColumns:  []string{},
		TextColumns:     []string{},
		DatetimeColumns: []string{},
		BooleanColumns:  []string{},
	}
	for i, c := range cols {
		info.Dtypes[c.Name] = c.Type
		info.Missing[c.Name] = missing[i]
		switch c.Type {
		case table.TypeNumber:
			info.NumericColumns = append(info.NumericColumns, c.Name)
		case table.TypeDatetime:
			info.DatetimeColumns = append(info.DatetimeColumns, c.Name)
		case table.TypeBool:
			info.BooleanColumns = append(info.BooleanColumns, c.Name)
		case table.TypeString, table.TypeMixed:
			info.TextColumns = append(info.TextColumns, c.Name)
		}
	}
	return info
}

// Options control how a source is opened.
type Options struct {
	SessionID string
	DataDir   string

	// LargeFileThreshold is the delimited-file size at which the SQLite
	// store is used.
	LargeFileThreshold int64
	BatchSize          int

	// LargeFileOps lists the operation kinds the SQLite store accepts.
	// Empty selects DefaultLargeFileOps.
	LargeFileOps []ops.Kind

	// Progress receives a copy of every byte read from the source.
	Progress io.Writer
	Logger   *slog.Logger
}

// Defaults.
const (
	DefaultLargeFileThreshold = 25 << 20
	DefaultBatchSize          = 5000
)

// DefaultLargeFileOps are the operations the SQLite store runs unless
// configured otherwise.
var DefaultLargeFileOps = []ops.Kind{ops.RemoveDuplicates, ops.RemoveEmpty, ops.CleanText, ops.MergeValues}

func (o Options) withDefaults() Options {
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if len(o.LargeFileOps) == 0 {
		o.LargeFileOps = DefaultLargeFileOps
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
