package table

import (
	"github.com/danchege/Alchemist/internal/common"
)

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	TypeNumber   ColumnType = "numeric"
	TypeString   ColumnType = "string"
	TypeBool     ColumnType = "boolean"
	TypeDatetime ColumnType = "datetime"
	TypeMixed    ColumnType = "mixed"
	TypeEmpty    ColumnType = "empty"
)

// Column is a named, typed column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Shape is the row and column count of a table.
type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// Table is an ordered list of typed columns and rows of cells.
//
// Tables are treated as immutable once built: code that needs a changed
// row copies it first. Rows that are not changed may be shared between
// tables, which keeps history snapshots cheap.
type Table struct {
	Columns []Column
	Rows    [][]Value
}

// New returns a table with the given columns and rows. Column types are
// inferred from the rows.
func New(names []string, rows [][]Value) *Table {
	t := &Table{Columns: make([]Column, len(names)), Rows: rows}
	for i, name := range names {
		t.Columns[i] = Column{Name: name}
	}
	t.RefreshTypes()
	return t
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Columns) }

// Shape returns the table dimensions.
func (t *Table) Shape() Shape {
	return Shape{Rows: len(t.Rows), Columns: len(t.Columns)}
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, error) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, common.ColumnNotFound(name)
}

// Indexes resolves several column names at once.
func (t *Table) Indexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos, err := t.Index(name)
		if err != nil {
			return nil, err
		}
		idx[i] = pos
	}
	return idx, nil
}

// ColumnValues returns a copy of the cells in column i.
func (t *Table) ColumnValues(i int) []Value {
	out := make([]Value, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: append([]Column(nil), t.Columns...),
		Rows:    make([][]Value, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]Value(nil), row...)
	}
	return c
}

// WithRows returns a table sharing t's columns with a different row set.
func (t *Table) WithRows(rows [][]Value) *Table {
	return &Table{Columns: append([]Column(nil), t.Columns...), Rows: rows}
}

// Head returns the first n rows as a new table.
func (t *Table) Head(n int) *Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.WithRows(append([][]Value(nil), t.Rows[:n]...))
}

// RefreshTypes re-infers every column type from the current rows.
func (t *Table) RefreshTypes() {
	for i := range t.Columns {
		t.Columns[i].Type = InferType(t.ColumnValues(i))
	}
}

// Equal reports whether a and b have the same columns and identical cells.
func Equal(a, b *Table) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Columns) != len(b.Columns) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for r := range a.Rows {
		if len(a.Rows[r]) != len(b.Rows[r]) {
			return false
		}
		for c := range a.Rows[r] {
			if !a.Rows[r][c].Identical(b.Rows[r][c]) {
				return false
			}
		}
	}
	return true
}

// InferType returns the column type implied by the kinds of its cells.
func InferType(values []Value) ColumnType {
	seen := KindNull
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if seen == KindNull {
			seen = v.Kind()
			continue
		}
		if v.Kind() != seen {
			return TypeMixed
		}
	}
	switch seen {
	case KindNumber:
		return TypeNumber
	case KindString:
		return TypeString
	case KindBool:
		return TypeBool
	case KindTime:
		return TypeDatetime
	default:
		return TypeEmpty
	}
}

// IsNumericType reports whether values of type ct support numeric
// aggregation. Empty columns count as numeric.
func IsNumericType(ct ColumnType) bool {
	return ct == TypeNumber || ct == TypeEmpty
}
