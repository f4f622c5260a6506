package ops

import (
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// PreviewRows is the number of leading rows a preview runs against.
const PreviewRows = 100

// Apply validates op and runs it against t. On error t is returned
// untouched and the result is nil.
func Apply(t *table.Table, op Operation) (*table.Table, Summary, error) {
	if err := op.Validate(); err != nil {
		return nil, Summary{}, common.WrapOp(string(op.Type), err)
	}

	var (
		out *table.Table
		sum Summary
		err error
	)
	switch op.Type {
	case RemoveDuplicates:
		out, sum = removeDuplicates(t)
	case FillMissing:
		out, sum, err = fillMissing(t, op)
	case RemoveOutliers:
		out, sum, err = removeOutliers(t, op)
	case ConvertTypes:
		out, sum, err = convertTypes(t, op)
	case CleanText:
		out, sum, err = cleanText(t, op)
	case RemoveEmpty:
		out, sum = removeEmpty(t, op.target())
	case MergeValues:
		out, sum, err = mergeValues(t, op)
	default:
		err = common.InvalidOperation("unknown operation %q", op.Type)
	}
	if err != nil {
		return nil, Summary{}, common.WrapOp(string(op.Type), err)
	}
	sum.Operation = string(op.Type)
	return out, sum, nil
}

// ApplyAll runs a batch in order. Either every operation succeeds or the
// first error is returned with a nil table.
func ApplyAll(t *table.Table, batch []Operation) (*table.Table, []Summary, error) {
	if len(batch) == 0 {
		return nil, nil, common.InvalidOperation("no operations given")
	}
	cur := t
	sums := make([]Summary, 0, len(batch))
	for _, op := range batch {
		next, sum, err := Apply(cur, op)
		if err != nil {
			return nil, nil, err
		}
		cur = next
		sums = append(sums, sum)
	}
	return cur, sums, nil
}

// ValidateAll checks every operation in a batch without running it.
func ValidateAll(batch []Operation) error {
	if len(batch) == 0 {
		return common.InvalidOperation("no operations given")
	}
	for _, op := range batch {
		if err := op.Validate(); err != nil {
			return common.WrapOp(string(op.Type), err)
		}
	}
	return nil
}

// PreviewResult is the outcome of running a batch on a sample.
type PreviewResult struct {
	Before    table.Shape  `json:"before"`
	After     table.Shape  `json:"after"`
	Summaries []Summary    `json:"summaries"`
	Table     *table.Table `json:"-"`
}

// Preview runs batch against the first PreviewRows rows of t.
func Preview(t *table.Table, batch []Operation) (*PreviewResult, error) {
	return PreviewN(t, batch, PreviewRows)
}

// PreviewN runs batch against the first n rows of t. n <= 0 selects
// PreviewRows.
func PreviewN(t *table.Table, batch []Operation, n int) (*PreviewResult, error) {
	if n <= 0 {
		n = PreviewRows
	}
	sample := t.Head(n)
	out, sums, err := ApplyAll(sample, batch)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Before:    sample.Shape(),
		After:     out.Shape(),
		Summaries: sums,
		Table:     out,
	}, nil
}

// withColumnTypes returns a copy of t's table header with the types of the
// given columns re-inferred from rows.
func withColumnTypes(t *table.Table, rows [][]table.Value, cols ...int) *table.Table {
	out := t.WithRows(rows)
	for _, c := range cols {
		vals := make([]table.Value, len(rows))
		for r, row := range rows {
			vals[r] = row[c]
		}
		out.Columns[c].Type = table.InferType(vals)
	}
	return out
}

// withTextTypes is withColumnTypes for operations that write or drop
// cells: the given columns, or every column when none are given, are
// re-typed from their text with table.RetypeFromText so that both store
// modes agree on types after a mutation. Rows whose cells change are
// copied.
func withTextTypes(t *table.Table, rows [][]table.Value, cols ...int) *table.Table {
	out := t.WithRows(rows)
	if len(cols) == 0 {
		cols = make([]int, len(t.Columns))
		for c := range cols {
			cols[c] = c
		}
	}

	copied := make([]bool, len(rows))
	vals := make([]table.Value, len(rows))
	for _, c := range cols {
		for r, row := range rows {
			vals[r] = row[c]
		}
		ct, typed := table.RetypeFromText(vals)
		out.Columns[c].Type = ct
		for r := range rows {
			if typed[r].Identical(rows[r][c]) {
				continue
			}
			if !copied[r] {
				rows[r] = append([]table.Value(nil), rows[r]...)
				copied[r] = true
			}
			rows[r][c] = typed[r]
		}
	}
	return out
}

// copyOnWrite returns row itself until set is called, then a private copy.
type copyOnWrite struct {
	row    []table.Value
	copied bool
}

func (w *copyOnWrite) set(i int, v table.Value) {
	if !w.copied {
		w.row = append([]table.Value(nil), w.row...)
		w.copied = true
	}
	w.row[i] = v
}
