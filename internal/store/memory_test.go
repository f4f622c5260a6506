package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/ops"
	"github.com/danchege/Alchemist/internal/table"
)

func peopleTable() *table.Table {
	return table.FromRecords([]string{"name", "age", "city"}, [][]string{
		{"Alice", "30", "NY"},
		{"bob", "25", ""},
		{"Carol", "", "LA"},
		{"dave", "40", "ny"},
		{"Eve", "35", "SF"},
	})
}

func names(p *Page) []string {
	out := make([]string, len(p.Rows))
	for i, row := range p.Rows {
		out[i] = row[0].Text()
	}
	return out
}

func TestMemory_PageDefaults(t *testing.T) {
	m := NewMemory(peopleTable(), nil)

	p, err := m.Page(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, []string{"Alice", "bob", "Carol", "dave", "Eve"}, names(p))
}

func TestMemory_PageSlicing(t *testing.T) {
	m := NewMemory(peopleTable(), nil)
	ctx := context.Background()

	p, err := m.Page(ctx, Query{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Eve"}, names(p))
	assert.Equal(t, 3, p.TotalPages)

	p, err = m.Page(ctx, Query{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, p.Rows)
	assert.Equal(t, 5, p.Total)

	p, err = m.Page(ctx, Query{Page: -4, PageSize: 9999})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestMemory_View(t *testing.T) {
	tests := []struct {
		name string
		view View
		want []string
	}{
		{
			name: "equals ignores case",
			view: View{Filter: &Filter{Column: "city", Operator: OpEquals, Value: "ny"}},
			want: []string{"Alice", "dave"},
		},
		{
			name: "empty filter value is ignored",
			view: View{Filter: &Filter{Column: "city", Operator: OpEquals, Value: "  "}},
			want: []string{"Alice", "bob", "Carol", "dave", "Eve"},
		},
		{
			name: "not equals keeps nulls",
			view: View{Filter: &Filter{Column: "city", Operator: OpNotEquals, Value: "NY"}},
			want: []string{"bob", "Carol", "Eve"},
		},
		{
			name: "numeric greater than",
			view: View{Filter: &Filter{Column: "age", Operator: OpGreaterThan, Value: "28"}},
			want: []string{"Alice", "dave", "Eve"},
		},
		{
			name: "non-numeric value on numeric column",
			view: View{Filter: &Filter{Column: "age", Operator: OpLessThan, Value: "abc"}},
			want: []string{},
		},
		{
			name: "lexical less than",
			view: View{Filter: &Filter{Column: "city", Operator: OpLessThan, Value: "N"}},
			want: []string{"Carol"},
		},
		{
			name: "sort descending puts nulls last",
			view: View{Sort: &Sort{Column: "age", Direction: SortDesc}},
			want: []string{"dave", "Eve", "Alice", "bob", "Carol"},
		},
		{
			name: "sort ascending puts nulls last",
			view: View{Sort: &Sort{Column: "age", Direction: SortAsc}},
			want: []string{"bob", "Alice", "Eve", "dave", "Carol"},
		},
		{
			name: "search any column",
			view: View{Search: " A "},
			want: []string{"Alice", "Carol", "dave"},
		},
		{
			name: "filter then sort then search",
			view: View{
				Filter: &Filter{Column: "age", Operator: OpGreaterThan, Value: "20"},
				Sort:   &Sort{Column: "name", Direction: SortDesc},
				Search: "e",
			},
			want: []string{"dave", "Eve", "Alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(peopleTable(), nil)
			p, err := m.Page(context.Background(), Query{View: tt.view})
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(p))
			assert.Equal(t, len(tt.want), p.Total)
		})
	}
}

func TestMemory_ViewErrors(t *testing.T) {
	m := NewMemory(peopleTable(), nil)
	ctx := context.Background()

	_, err := m.Page(ctx, Query{View: View{Filter: &Filter{Column: "nope", Operator: OpEquals, Value: "x"}}})
	assert.ErrorIs(t, err, common.ErrColumnNotFound)

	_, err = m.Page(ctx, Query{View: View{Filter: &Filter{Column: "city", Operator: "like", Value: "x"}}})
	assert.ErrorIs(t, err, common.ErrInvalidOperation)

	_, err = m.Page(ctx, Query{View: View{Sort: &Sort{Column: "city", Direction: "sideways"}}})
	assert.ErrorIs(t, err, common.ErrInvalidOperation)
}

func TestMemory_ViewCacheInvalidatedByApply(t *testing.T) {
	m := NewMemory(peopleTable(), nil)
	ctx := context.Background()
	q := Query{View: View{Filter: &Filter{Column: "city", Operator: OpEquals, Value: "ny"}}}

	p, err := m.Page(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)

	_, _, err = m.Apply(ctx, []ops.Operation{{Type: ops.MergeValues, Column: "city", Canonical: "NY", Values: []string{"ny"}}})
	require.NoError(t, err)

	p, err = m.Page(ctx, Query{View: View{Filter: &Filter{Column: "city", Operator: OpContains, Value: "Y"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)

	p, err = m.Page(ctx, q)
	require.NoError(t, err)
	for _, row := range p.Rows {
		assert.Equal(t, "NY", row[2].Text())
	}
}

func TestMemory_Profile(t *testing.T) {
	m := NewMemory(peopleTable(), nil)

	p, err := m.Profile(context.Background(), "city", 0)
	require.NoError(t, err)
	assert.Equal(t, table.TypeString, p.Type)
	assert.Equal(t, 5, p.TotalRows)
	assert.Equal(t, 1, p.NullRows)
	assert.Equal(t, 0, p.EmptyRows)
	assert.Equal(t, 4, p.UniqueCount)
	require.Len(t, p.TopValues, 4)
	assert.Equal(t, "LA", p.TopValues[0].Value)

	_, err = m.Profile(context.Background(), "missing", 5)
	assert.ErrorIs(t, err, common.ErrColumnNotFound)
}

func TestMemory_Info(t *testing.T) {
	m := NewMemory(peopleTable(), nil)

	info, err := m.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeMemory, info.Mode)
	assert.Equal(t, table.Shape{Rows: 5, Columns: 3}, info.Shape)
	assert.Equal(t, []string{"age"}, info.NumericColumns)
	assert.Equal(t, []string{"name", "city"}, info.TextColumns)
	assert.Equal(t, map[string]int{"name": 0, "age": 1, "city": 1}, info.Missing)
}

func TestMemory_UndoRedo(t *testing.T) {
	orig := peopleTable()
	m := NewMemory(orig, nil)
	ctx := context.Background()

	snap, sums, err := m.Apply(ctx, []ops.Operation{{Type: ops.FillMissing, Column: "age", Method: ops.MethodZero}})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].Affected)
	assert.Equal(t, "Fill missing values in \"age\" (zero)", snap.Description)
	applied := m.Table()

	redo, err := m.Undo(ctx, snap, nil)
	require.NoError(t, err)
	assert.True(t, table.Equal(orig, m.Table()))

	_, err = m.Redo(ctx, redo)
	require.NoError(t, err)
	assert.True(t, table.Equal(applied, m.Table()))

	require.NoError(t, m.Reset(ctx))
	assert.True(t, table.Equal(orig, m.Table()))
}

func TestMemory_ApplyFailureLeavesTable(t *testing.T) {
	orig := peopleTable()
	m := NewMemory(orig, nil)

	_, _, err := m.Apply(context.Background(), []ops.Operation{
		{Type: ops.RemoveDuplicates},
		{Type: ops.FillMissing, Column: "city", Method: ops.MethodMean},
	})
	assert.ErrorIs(t, err, common.ErrTypeMismatch)
	assert.Same(t, orig, m.Table())
}
