package store

import (
	"fmt"
	"strings"

	"github.com/danchege/Alchemist/internal/table"
)

// whereBuilder accumulates AND-ed SQL conditions and their arguments.
type whereBuilder struct {
	conditions []string
	args       []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

// add appends a condition with its arguments.
func (wb *whereBuilder) add(cond string, args ...any) {
	wb.conditions = append(wb.conditions, cond)
	wb.args = append(wb.args, args...)
}

// foldedText is the folded cell text of col, with NULL read as "".
func foldedText(col string) string {
	return fmt.Sprintf("alc_fold(COALESCE(%s, ''))", quoteIdentifier(col))
}

// addFilter adds the condition for f on a column of type ct. The rules
// mirror rowMatcher.
func (wb *whereBuilder) addFilter(f *Filter, ct table.ColumnType) {
	col := quoteIdentifier(f.Column)
	want := table.Fold(strings.TrimSpace(f.Value))

	switch f.Operator {
	case OpEquals:
		wb.add(foldedText(f.Column)+" = ?", want)
	case OpNotEquals:
		wb.add(foldedText(f.Column)+" <> ?", want)
	case OpContains:
		wb.add("instr("+foldedText(f.Column)+", ?) > 0", want)
	case OpNotContains:
		wb.add("instr("+foldedText(f.Column)+", ?) = 0", want)
	case OpGreaterThan, OpLessThan:
		cmp := ">"
		if f.Operator == OpLessThan {
			cmp = "<"
		}
		raw := strings.TrimSpace(f.Value)
		if ct != table.TypeNumber {
			wb.add(fmt.Sprintf("%s IS NOT NULL AND %s %s ?", col, col, cmp), raw)
			return
		}
		n, ok := table.ParseStrictNumber(raw)
		if !ok {
			wb.add("1 = 0")
			return
		}
		wb.add(fmt.Sprintf("%s IS NOT NULL AND alc_num(COALESCE(%s, '')) %s ?", col, col, cmp), n)
	}
}

// addSearch matches term as a folded substring of any column.
func (wb *whereBuilder) addSearch(term string, cols []string) {
	if term == "" || len(cols) == 0 {
		return
	}
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = "instr(" + foldedText(c) + ", ?) > 0"
		args[i] = term
	}
	wb.add("("+strings.Join(parts, " OR ")+")", args...)
}

// build returns the WHERE clause with a leading space, or "" and nil args
// when no conditions were added.
func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// orderBy returns the ORDER BY clause for s on a column of type ct. Nulls
// sort last in both directions and ties keep load order.
func orderBy(s *Sort, ct table.ColumnType) string {
	if s == nil {
		return " ORDER BY rowid"
	}
	col := quoteIdentifier(s.Column)
	key := col
	if ct == table.TypeNumber {
		key = fmt.Sprintf("alc_num(COALESCE(%s, ''))", col)
	}
	dir := "ASC"
	if s.Desc() {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY (%s IS NULL), %s %s, rowid", col, key, dir)
}
