package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

func numberTable(name string, xs ...float64) *table.Table {
	rows := make([][]table.Value, len(xs))
	for i, x := range xs {
		rows[i] = []table.Value{table.Number(x)}
	}
	return table.New([]string{name}, rows)
}

func peopleTable() *table.Table {
	return table.New([]string{"name", "age", "city"}, [][]table.Value{
		{table.String("  Alice "), table.Number(30), table.String("NY")},
		{table.String("bob"), table.Null(), table.String("ny")},
		{table.String("  Alice "), table.Number(30), table.String("NY")},
		{table.Null(), table.Number(50), table.String("N.Y.")},
	})
}

func column(t *table.Table, name string) []string {
	c, err := t.Index(name)
	if err != nil {
		panic(err)
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[c].Text()
	}
	return out
}

// ============================================================================
// Validation
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{"dedupe", Operation{Type: RemoveDuplicates}, false},
		{"unknown type", Operation{Type: "explode"}, true},
		{"missing type", Operation{}, true},
		{"fill without column", Operation{Type: FillMissing, Method: MethodMean}, true},
		{"fill bad method", Operation{Type: FillMissing, Column: "a", Method: "guess"}, true},
		{"fill value without value", Operation{Type: FillMissing, Column: "a", Method: MethodValue}, true},
		{"fill value", Operation{Type: FillMissing, Column: "a", Method: MethodValue, Value: "x"}, false},
		{"outliers with fill method", Operation{Type: RemoveOutliers, Column: "a", Method: MethodMean}, true},
		{"convert bad target", Operation{Type: ConvertTypes, Columns: []string{"a"}, TargetType: "money"}, true},
		{"clean bad text op", Operation{Type: CleanText, Columns: []string{"a"}, TextOperations: []string{"shout"}}, true},
		{"merge no values", Operation{Type: MergeValues, Column: "a", Canonical: "x"}, true},
		{"empty bad target", Operation{Type: RemoveEmpty, Target: "cells"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidOperation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ============================================================================
// Operations
// ============================================================================

func TestRemoveDuplicates(t *testing.T) {
	in := peopleTable()
	out, sum, err := Apply(in, Operation{Type: RemoveDuplicates})
	require.NoError(t, err)

	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, 1, sum.Affected)
	assert.Equal(t, "rows", sum.Unit)

	again, _, err := Apply(out, Operation{Type: RemoveDuplicates})
	require.NoError(t, err)
	assert.True(t, table.Equal(out, again), "dedupe should be idempotent")
}

func TestRemoveDuplicates_NumbersCompareByValue(t *testing.T) {
	in := table.New([]string{"x"}, [][]table.Value{
		{table.NumberRaw(1.5, "1.50")},
		{table.NumberRaw(1.5, "1.5")},
	})
	out, _, err := Apply(in, Operation{Type: RemoveDuplicates})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.50"}, column(out, "x"))
}

func TestFillMissing(t *testing.T) {
	in := table.New([]string{"x"}, [][]table.Value{
		{table.Number(1)}, {table.Null()}, {table.Number(2)}, {table.Number(6)},
	})

	tests := []struct {
		method string
		value  any
		want   string
	}{
		{MethodMean, nil, "3"},
		{MethodMedian, nil, "2"},
		{MethodZero, nil, "0"},
		{MethodValue, "7", "7"},
		{MethodMode, nil, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			out, sum, err := Apply(in, Operation{Type: FillMissing, Column: "x", Method: tt.method, Value: tt.value})
			require.NoError(t, err)
			assert.Equal(t, 1, sum.Affected)
			assert.Equal(t, tt.want, column(out, "x")[1])
			assert.Equal(t, table.TypeNumber, out.Columns[0].Type)
		})
	}
}

func TestFillMissing_MeanOnStringColumn(t *testing.T) {
	_, _, err := Apply(peopleTable(), Operation{Type: FillMissing, Column: "name", Method: MethodMean})
	assert.ErrorIs(t, err, common.ErrTypeMismatch)
}

func TestFillMissing_UnknownColumn(t *testing.T) {
	_, _, err := Apply(peopleTable(), Operation{Type: FillMissing, Column: "nope", Method: MethodZero})
	assert.ErrorIs(t, err, common.ErrColumnNotFound)
}

func TestRemoveOutliers(t *testing.T) {
	tests := []struct {
		method string
		in     []float64
		want   int
	}{
		{MethodIQR, []float64{1, 2, 3, 4, 5, 100}, 5},
		{MethodZScore, []float64{5, 5, 5, 5}, 4},
		{MethodModifiedZScore, []float64{1, 2, 3, 4, 5, 100}, 5},
		{MethodModifiedZScore, []float64{7, 7, 7, 7, 100}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			out, _, err := Apply(numberTable("x", tt.in...), Operation{Type: RemoveOutliers, Column: "x", Method: tt.method})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.NumRows())
		})
	}
}

func TestRemoveOutliers_KeepsNulls(t *testing.T) {
	in := table.New([]string{"x"}, [][]table.Value{
		{table.Number(1)}, {table.Number(2)}, {table.Number(3)},
		{table.Number(4)}, {table.Number(5)}, {table.Number(100)}, {table.Null()},
	})
	out, sum, err := Apply(in, Operation{Type: RemoveOutliers, Column: "x", Method: MethodIQR})
	require.NoError(t, err)
	assert.Equal(t, 6, out.NumRows())
	assert.Equal(t, 1, sum.Affected)
	assert.NotContains(t, column(out, "x"), "100")
}

func TestRemoveOutliers_StringColumn(t *testing.T) {
	_, _, err := Apply(peopleTable(), Operation{Type: RemoveOutliers, Column: "city", Method: MethodIQR})
	assert.ErrorIs(t, err, common.ErrTypeMismatch)
}

func TestConvertTypes(t *testing.T) {
	in := table.New([]string{"amount"}, [][]table.Value{
		{table.String("$1,234.50")},
		{table.String("(12)")},
		{table.String("abc")},
		{table.Null()},
	})
	out, sum, err := Apply(in, Operation{Type: ConvertTypes, Columns: []string{"amount"}, TargetType: TargetNumeric})
	require.NoError(t, err)

	assert.Equal(t, []string{"1234.5", "-12", "", ""}, column(out, "amount"))
	assert.Equal(t, 2, sum.Affected)
	assert.Equal(t, 1, sum.Failures)
	assert.Equal(t, table.TypeNumber, out.Columns[0].Type)
}

func TestConvertTypes_ToString(t *testing.T) {
	in := table.New([]string{"x"}, [][]table.Value{{table.NumberRaw(2.5, "2.50")}})
	out, _, err := Apply(in, Operation{Type: ConvertTypes, Columns: []string{"x"}, TargetType: TargetString})
	require.NoError(t, err)
	assert.Equal(t, table.TypeString, out.Columns[0].Type)
	assert.Equal(t, []string{"2.50"}, column(out, "x"))
}

func TestCleanText(t *testing.T) {
	out, sum, err := Apply(peopleTable(), Operation{
		Type:           CleanText,
		Columns:        []string{"name"},
		TextOperations: []string{TrimWhitespace, NormalizeCase},
		CaseType:       CaseTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Alice", ""}, column(out, "name"))
	assert.Equal(t, 3, sum.Affected)
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		in       string
		ops      []string
		caseType string
		want     string
	}{
		{"  Hi  ", []string{TrimWhitespace}, "", "Hi"},
		{"Hi", []string{NormalizeCase}, "", "hi"},
		{"hi there", []string{NormalizeCase}, CaseUpper, "HI THERE"},
		{"hELLO wORLD", []string{NormalizeCase}, CaseTitle, "Hello World"},
		{" x ", nil, CaseUpper, " x "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanString(tt.in, tt.ops, tt.caseType), tt.in)
	}
}

func TestRemoveEmpty(t *testing.T) {
	in := table.New([]string{"a", "b"}, [][]table.Value{
		{table.String("x"), table.Null()},
		{table.String("  "), table.Null()},
		{table.Null(), table.Null()},
	})

	rows, sum, err := Apply(in, Operation{Type: RemoveEmpty, Target: TargetRows})
	require.NoError(t, err)
	assert.Equal(t, 1, rows.NumRows())
	assert.Equal(t, 2, sum.Affected)

	cols, sum, err := Apply(in, Operation{Type: RemoveEmpty, Target: TargetColumns})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cols.Names())
	assert.Equal(t, 3, cols.NumRows())
	assert.Equal(t, "columns", sum.Unit)
}

func TestMergeValues(t *testing.T) {
	out, sum, err := Apply(peopleTable(), Operation{
		Type:      MergeValues,
		Column:    "city",
		Canonical: "NY",
		Values:    []string{"NY", "ny", "N.Y."},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"NY", "NY", "NY", "NY"}, column(out, "city"))
	assert.Equal(t, 2, sum.Affected)
}

func TestMergeValues_RetypesFromText(t *testing.T) {
	in := table.New([]string{"code"}, [][]table.Value{
		{table.String("abc")}, {table.String("10")}, {table.String("9")},
	})
	require.Equal(t, table.TypeString, in.Columns[0].Type)

	out, _, err := Apply(in, Operation{Type: MergeValues, Column: "code", Canonical: "5", Values: []string{"abc"}})
	require.NoError(t, err)
	assert.Equal(t, table.TypeNumber, out.Columns[0].Type)
	for _, row := range out.Rows {
		assert.Equal(t, table.KindNumber, row[0].Kind())
	}
	assert.Equal(t, []string{"5", "10", "9"}, column(out, "code"))

	// The input keeps its string cells.
	assert.Equal(t, table.KindString, in.Rows[1][0].Kind())
}

func TestFillMissing_ZeroIntoTextColumn(t *testing.T) {
	in := table.New([]string{"code"}, [][]table.Value{{table.String("abc")}, {table.Null()}})
	out, _, err := Apply(in, Operation{Type: FillMissing, Column: "code", Method: MethodZero})
	require.NoError(t, err)
	assert.Equal(t, table.TypeString, out.Columns[0].Type)
	assert.Equal(t, table.KindString, out.Rows[1][0].Kind())
	assert.Equal(t, "0", out.Rows[1][0].Text())
}

// ============================================================================
// Engine properties
// ============================================================================

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := peopleTable()
	before := in.Clone()

	batch := []Operation{
		{Type: CleanText, Columns: []string{"name"}, TextOperations: []string{TrimWhitespace}},
		{Type: FillMissing, Column: "age", Method: MethodZero},
		{Type: RemoveDuplicates},
		{Type: MergeValues, Column: "city", Canonical: "NY", Values: []string{"ny"}},
	}
	_, _, err := ApplyAll(in, batch)
	require.NoError(t, err)
	assert.True(t, table.Equal(before, in), "input table changed")
}

func TestApplyAll_FailsAtomically(t *testing.T) {
	batch := []Operation{
		{Type: RemoveDuplicates},
		{Type: FillMissing, Column: "missing", Method: MethodZero},
	}
	out, sums, err := ApplyAll(peopleTable(), batch)
	assert.ErrorIs(t, err, common.ErrColumnNotFound)
	assert.Nil(t, out)
	assert.Nil(t, sums)

	var opErr *common.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, string(FillMissing), opErr.Op)
}

func TestPreview_UsesLeadingRows(t *testing.T) {
	xs := make([]float64, 250)
	for i := range xs {
		xs[i] = float64(i % 10)
	}
	res, err := Preview(numberTable("x", xs...), []Operation{{Type: RemoveDuplicates}})
	require.NoError(t, err)
	assert.Equal(t, PreviewRows, res.Before.Rows)
	assert.Equal(t, 10, res.After.Rows)
}

func TestDescribeAll(t *testing.T) {
	assert.Equal(t, "Remove duplicate rows", DescribeAll([]Operation{{Type: RemoveDuplicates}}))
	assert.Equal(t, "Clean operations: remove_duplicates, remove_empty",
		DescribeAll([]Operation{{Type: RemoveDuplicates}, {Type: RemoveEmpty}}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Clean_Text ")
	require.NoError(t, err)
	assert.Equal(t, CleanText, k)

	_, err = ParseKind("pivot")
	assert.ErrorIs(t, err, common.ErrInvalidOperation)
}
