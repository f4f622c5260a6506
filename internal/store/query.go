package store

import (
	"strings"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// Filter operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpNotContains = "not_contains"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Page size limits.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Filter restricts rows by one column.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Sort orders rows by one column.
type Sort struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// Desc reports whether the sort is descending.
func (s *Sort) Desc() bool {
	return strings.EqualFold(s.Direction, SortDesc)
}

// View is a filter, sort and search over the current table. A view never
// changes the table.
type View struct {
	Filter *Filter `json:"filter,omitempty"`
	Sort   *Sort   `json:"sort,omitempty"`
	Search string  `json:"search,omitempty"`
}

// activeFilter returns the filter if it should be applied. An empty value
// disables the filter.
func (v *View) activeFilter() *Filter {
	if v == nil || v.Filter == nil || v.Filter.Column == "" || strings.TrimSpace(v.Filter.Value) == "" {
		return nil
	}
	return v.Filter
}

func (v *View) activeSort() *Sort {
	if v == nil || v.Sort == nil || v.Sort.Column == "" {
		return nil
	}
	return v.Sort
}

func (v *View) search() string {
	if v == nil {
		return ""
	}
	return table.Fold(strings.TrimSpace(v.Search))
}

// key identifies the view for caching.
func (v *View) key() string {
	if v == nil {
		return ""
	}
	var b strings.Builder
	if f := v.activeFilter(); f != nil {
		b.WriteString(f.Column + "\x1f" + f.Operator + "\x1f" + f.Value)
	}
	b.WriteByte(0x1e)
	if s := v.activeSort(); s != nil {
		b.WriteString(s.Column + "\x1f" + strings.ToLower(s.Direction))
	}
	b.WriteByte(0x1e)
	b.WriteString(v.search())
	return b.String()
}

// validate checks operator and direction names against the known sets.
func (v *View) validate(cols []table.Column) error {
	if f := v.activeFilter(); f != nil {
		if columnIndex(cols, f.Column) < 0 {
			return common.ColumnNotFound(f.Column)
		}
		switch f.Operator {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpNotContains:
		default:
			return common.InvalidOperation("unknown filter operator %q", f.Operator)
		}
	}
	if s := v.activeSort(); s != nil {
		if columnIndex(cols, s.Column) < 0 {
			return common.ColumnNotFound(s.Column)
		}
		switch strings.ToLower(s.Direction) {
		case "", SortAsc, SortDesc:
		default:
			return common.InvalidOperation("unknown sort direction %q", s.Direction)
		}
	}
	return nil
}

// Query is a view plus pagination.
type Query struct {
	View
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// normalize clamps page and page size. Pages past the end return no rows.
func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = DefaultPageSize
	case q.PageSize < 1:
		q.PageSize = 1
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q
}

func (q Query) offset() int {
	return (q.Page - 1) * q.PageSize
}

func totalPages(total, size int) int {
	if total == 0 {
		return 0
	}
	return (total + size - 1) / size
}

func columnIndex(cols []table.Column, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ============================================================================
// In-memory evaluation
// ============================================================================

// rowMatcher compiles a filter for a column of type ct. The rules mirror
// the SQL built by whereBuilder.addFilter.
func rowMatcher(f *Filter, c int, ct table.ColumnType) func(row []table.Value) bool {
	want := table.Fold(strings.TrimSpace(f.Value))
	text := func(row []table.Value) string { return table.Fold(row[c].Text()) }

	switch f.Operator {
	case OpEquals:
		return func(row []table.Value) bool { return text(row) == want }
	case OpNotEquals:
		return func(row []table.Value) bool { return text(row) != want }
	case OpContains:
		return func(row []table.Value) bool { return strings.Contains(text(row), want) }
	case OpNotContains:
		return func(row []table.Value) bool { return !strings.Contains(text(row), want) }
	}

	greater := f.Operator == OpGreaterThan
	raw := strings.TrimSpace(f.Value)
	if ct == table.TypeNumber {
		n, ok := table.ParseStrictNumber(raw)
		if !ok {
			return func([]table.Value) bool { return false }
		}
		return func(row []table.Value) bool {
			x, ok := row[c].Float()
			if !ok {
				return false
			}
			if greater {
				return x > n
			}
			return x < n
		}
	}
	return func(row []table.Value) bool {
		if row[c].IsNull() {
			return false
		}
		cmp := strings.Compare(row[c].Text(), raw)
		if greater {
			return cmp > 0
		}
		return cmp < 0
	}
}

// rowCompare compiles a sort for a column of type ct. Nulls sort last in both
// directions.
func rowCompare(s *Sort, c int, ct table.ColumnType) func(a, b []table.Value) int {
	desc := s.Desc()
	return func(a, b []table.Value) int {
		x, y := a[c], b[c]
		switch {
		case x.IsNull() && y.IsNull():
			return 0
		case x.IsNull():
			return 1
		case y.IsNull():
			return -1
		}
		var cmp int
		if ct == table.TypeNumber {
			fx, _ := x.Float()
			fy, _ := y.Float()
			switch {
			case fx < fy:
				cmp = -1
			case fx > fy:
				cmp = 1
			}
		} else {
			cmp = strings.Compare(x.Text(), y.Text())
		}
		if desc {
			return -cmp
		}
		return cmp
	}
}

func rowSearch(term string) func(row []table.Value) bool {
	return func(row []table.Value) bool {
		for _, v := range row {
			if strings.Contains(table.Fold(v.Text()), term) {
				return true
			}
		}
		return false
	}
}
