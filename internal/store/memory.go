package store

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/danchege/Alchemist/internal/cluster"
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

// Memory keeps the whole table in memory. History snapshots share rows
// with the current table, so each entry costs only the rows it changed.
type Memory struct {
	original *table.Table
	current  *table.Table
	revision uint64
	logger   *slog.Logger

	// last evaluated view, reused by paging and filtered export
	cache viewCache
}

type viewCache struct {
	revision uint64
	key      string
	rows     []int
	valid    bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store over t. t becomes the table restored by Reset.
func NewMemory(t *table.Table, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{original: t, current: t, logger: logger}
}

func (m *Memory) Mode() Mode              { return ModeMemory }
func (m *Memory) Columns() []table.Column { return append([]table.Column(nil), m.current.Columns...) }
func (m *Memory) Shape() table.Shape      { return m.current.Shape() }

// Table returns the current table. Callers must not modify it.
func (m *Memory) Table() *table.Table { return m.current }

func (m *Memory) setCurrent(t *table.Table) {
	m.current = t
	m.revision++
	m.cache.valid = false
}

// rows evaluates v against the current table and returns the matching row
// positions in view order.
func (m *Memory) rows(v *View) ([]int, error) {
	t := m.current
	if err := v.validate(t.Columns); err != nil {
		return nil, err
	}
	key := v.key()
	if m.cache.valid && m.cache.revision == m.revision && m.cache.key == key {
		return m.cache.rows, nil
	}

	idx := make([]int, 0, len(t.Rows))
	match := func([]table.Value) bool { return true }
	if f := v.activeFilter(); f != nil {
		c := columnIndex(t.Columns, f.Column)
		match = rowMatcher(f, c, t.Columns[c].Type)
	}
	for i, row := range t.Rows {
		if match(row) {
			idx = append(idx, i)
		}
	}

	if s := v.activeSort(); s != nil {
		c := columnIndex(t.Columns, s.Column)
		cmp := rowCompare(s, c, t.Columns[c].Type)
		slices.SortStableFunc(idx, func(a, b int) int { return cmp(t.Rows[a], t.Rows[b]) })
	}

	if term := v.search(); term != "" {
		found := rowSearch(term)
		kept := idx[:0]
		for _, i := range idx {
			if found(t.Rows[i]) {
				kept = append(kept, i)
			}
		}
		idx = kept
	}

	m.cache = viewCache{revision: m.revision, key: key, rows: idx, valid: true}
	return idx, nil
}

func (m *Memory) Page(_ context.Context, q Query) (*Page, error) {
	q = q.normalize()
	idx, err := m.rows(&q.View)
	if err != nil {
		return nil, err
	}

	start := min(q.offset(), len(idx))
	end := min(start+q.PageSize, len(idx))
	rows := make([][]table.Value, 0, end-start)
	for _, i := range idx[start:end] {
		rows = append(rows, m.current.Rows[i])
	}
	return &Page{
		Columns:    m.Columns(),
		Rows:       rows,
		Total:      len(idx),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(len(idx), q.PageSize),
	}, nil
}

func (m *Memory) Sample(_ context.Context, n int) (*table.Table, error) {
	return m.current.Head(n), nil
}

func (m *Memory) Profile(_ context.Context, column string, topN int) (*Profile, error) {
	t := m.current
	c, err := t.Index(column)
	if err != nil {
		return nil, err
	}

	p := &Profile{Column: column, Type: t.Columns[c].Type, TotalRows: len(t.Rows)}
	counts := make(map[string]int)
	for _, row := range t.Rows {
		v := row[c]
		if v.IsNull() {
			p.NullRows++
			continue
		}
		if v.IsBlank() {
			p.EmptyRows++
		}
		counts[v.Text()]++
	}
	p.UniqueCount = len(counts)
	p.TopValues = topFrequencies(counts, ClampTopN(topN))
	return p, nil
}

func topFrequencies(counts map[string]int, n int) []cluster.Frequency {
	freqs := make([]cluster.Frequency, 0, len(counts))
	for v, c := range counts {
		freqs = append(freqs, cluster.Frequency{Value: v, Count: c})
	}
	cluster.SortFrequencies(freqs)
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}

func (m *Memory) Frequencies(_ context.Context, column string, limit int) ([]cluster.Frequency, error) {
	c, err := m.current.Index(column)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(m.current.Rows))
	for _, row := range m.current.Rows {
		if !row[c].IsNull() {
			values = append(values, row[c].Text())
		}
	}
	freqs := cluster.Count(values)
	if limit > 0 && len(freqs) > limit {
		freqs = freqs[:limit]
	}
	return freqs, nil
}

func (m *Memory) Info(_ context.Context) (*Info, error) {
	t := m.current
	missing := make([]int, len(t.Columns))
	for _, row := range t.Rows {
		for c, v := range row {
			if v.IsNull() {
				missing[c]++
			}
		}
	}
	return newInfo(ModeMemory, t.Shape(), m.Columns(), missing), nil
}

func (m *Memory) Export(_ context.Context, w io.Writer, format Format, view *View, name string) error {
	t := m.current
	each := func(yield func([]table.Value) error) error {
		for _, row := range t.Rows {
			if err := yield(row); err != nil {
				return err
			}
		}
		return nil
	}
	if view != nil {
		idx, err := m.rows(view)
		if err != nil {
			return err
		}
		each = func(yield func([]table.Value) error) error {
			for _, i := range idx {
				if err := yield(t.Rows[i]); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return writeExport(w, format, name, t.Columns, each)
}

func (m *Memory) Supports(ops.Operation) error { return nil }

func (m *Memory) Apply(_ context.Context, batch []ops.Operation) (Snapshot, []ops.Summary, error) {
	before := m.current
	out, sums, err := ops.ApplyAll(before, batch)
	if err != nil {
		return Snapshot{}, nil, err
	}
	m.setCurrent(out)
	return newSnapshot(batch, out.Shape(), before), sums, nil
}

func (m *Memory) Undo(_ context.Context, entry Snapshot, _ []Snapshot) (Snapshot, error) {
	if entry.data == nil {
		return Snapshot{}, common.InvalidOperation("history entry has no table")
	}
	redo := newSnapshot(entry.Operations, m.current.Shape(), m.current)
	redo.Time = entry.Time
	m.setCurrent(entry.data)
	return redo, nil
}

func (m *Memory) Redo(_ context.Context, entry Snapshot) (Snapshot, error) {
	if entry.data == nil {
		return Snapshot{}, common.InvalidOperation("history entry has no table")
	}
	undo := newSnapshot(entry.Operations, entry.data.Shape(), m.current)
	m.setCurrent(entry.data)
	return undo, nil
}

// Evict is a no-op: dropping the snapshot releases its table.
func (m *Memory) Evict(context.Context, Snapshot) error { return nil }

func (m *Memory) Reset(context.Context) error {
	m.setCurrent(m.original)
	return nil
}

func (m *Memory) Close() error {
	m.current, m.original = nil, nil
	m.cache = viewCache{}
	return nil
}
