package store

import (
	"testing"

	"github.com/danchege/Alchemist/internal/table"
)

// ============================================================================
// whereBuilder Tests
// ============================================================================

func TestWhereBuilder_Build_Empty(t *testing.T) {
	wb := newWhereBuilder()
	whereClause, args := wb.build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_AddFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		ct     table.ColumnType
		clause string
		args   []any
	}{
		{
			name:   "equals folds and trims",
			filter: Filter{Column: "status", Operator: OpEquals, Value: " YES "},
			ct:     table.TypeString,
			clause: ` WHERE alc_fold(COALESCE("status", '')) = ?`,
			args:   []any{"yes"},
		},
		{
			name:   "not contains",
			filter: Filter{Column: "name", Operator: OpNotContains, Value: "Bob"},
			ct:     table.TypeString,
			clause: ` WHERE instr(alc_fold(COALESCE("name", '')), ?) = 0`,
			args:   []any{"bob"},
		},
		{
			name:   "numeric greater than",
			filter: Filter{Column: "age", Operator: OpGreaterThan, Value: "30"},
			ct:     table.TypeNumber,
			clause: ` WHERE "age" IS NOT NULL AND alc_num(COALESCE("age", '')) > ?`,
			args:   []any{30.0},
		},
		{
			name:   "non-numeric value on numeric column",
			filter: Filter{Column: "age", Operator: OpLessThan, Value: "abc"},
			ct:     table.TypeNumber,
			clause: ` WHERE 1 = 0`,
			args:   nil,
		},
		{
			name:   "lexical less than",
			filter: Filter{Column: "city", Operator: OpLessThan, Value: "M"},
			ct:     table.TypeString,
			clause: ` WHERE "city" IS NOT NULL AND "city" < ?`,
			args:   []any{"M"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := newWhereBuilder()
			wb.addFilter(&tt.filter, tt.ct)
			clause, args := wb.build()

			if clause != tt.clause {
				t.Errorf("clause = %q, want %q", clause, tt.clause)
			}
			if len(args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", args, tt.args)
			}
			for i := range args {
				if args[i] != tt.args[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.args[i])
				}
			}
		})
	}
}

func TestWhereBuilder_AddSearch(t *testing.T) {
	wb := newWhereBuilder()
	wb.add(`"a" IS NOT NULL`)
	wb.addSearch("x", []string{"a", "b"})

	clause, args := wb.build()
	want := ` WHERE "a" IS NOT NULL AND (instr(alc_fold(COALESCE("a", '')), ?) > 0 OR instr(alc_fold(COALESCE("b", '')), ?) > 0)`
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		sort *Sort
		ct   table.ColumnType
		want string
	}{
		{nil, table.TypeString, " ORDER BY rowid"},
		{&Sort{Column: "name", Direction: "asc"}, table.TypeString, ` ORDER BY ("name" IS NULL), "name" ASC, rowid`},
		{&Sort{Column: "n", Direction: "DESC"}, table.TypeNumber, ` ORDER BY ("n" IS NULL), alc_num(COALESCE("n", '')) DESC, rowid`},
	}

	for _, tt := range tests {
		if got := orderBy(tt.sort, tt.ct); got != tt.want {
			t.Errorf("orderBy() = %q, want %q", got, tt.want)
		}
	}
}
