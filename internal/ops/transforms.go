package ops

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// RowKey joins the canonical keys of a row's cells. Rows with equal keys
// are duplicates.
func RowKey(row []table.Value) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(v.Key())
	}
	return b.String()
}

func removeDuplicates(t *table.Table) (*table.Table, Summary) {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := make([][]table.Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		k := RowKey(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}
	return withTextTypes(t, kept), Summary{Affected: len(t.Rows) - len(kept), Unit: "rows"}
}

func fillMissing(t *table.Table, op Operation) (*table.Table, Summary, error) {
	c, err := t.Index(op.Column)
	if err != nil {
		return nil, Summary{}, err
	}
	ct := t.Columns[c].Type

	var fill table.Value
	switch op.Method {
	case MethodMean, MethodMedian:
		if !table.IsNumericType(ct) {
			return nil, Summary{}, common.TypeMismatch("column %q is %s, %s requires a numeric column", op.Column, ct, op.Method)
		}
		xs := numbers(t, c)
		if len(xs) == 0 {
			return t.WithRows(t.Rows), Summary{Unit: "cells"}, nil
		}
		if op.Method == MethodMean {
			fill = table.Number(mean(xs))
		} else {
			fill = table.Number(median(xs))
		}
	case MethodMode:
		v, ok := mode(t, c)
		if !ok {
			return t.WithRows(t.Rows), Summary{Unit: "cells"}, nil
		}
		fill = v
	case MethodZero:
		fill = table.Number(0)
	case MethodValue:
		fill = FillValue(ct, op.Value)
	}

	rows := make([][]table.Value, len(t.Rows))
	filled := 0
	for r, row := range t.Rows {
		if !row[c].IsNull() {
			rows[r] = row
			continue
		}
		w := copyOnWrite{row: row}
		w.set(c, fill)
		rows[r] = w.row
		filled++
	}
	return withTextTypes(t, rows, c), Summary{Affected: filled, Unit: "cells"}, nil
}

// FillValue converts a user-supplied fill value into a cell for a column of
// type ct. Numeric text is stored as a number in numeric columns.
func FillValue(ct table.ColumnType, raw any) table.Value {
	switch v := raw.(type) {
	case nil:
		return table.Null()
	case float64:
		return table.Number(v)
	case int:
		return table.Number(float64(v))
	case int64:
		return table.Number(float64(v))
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return table.NumberRaw(f, v.String())
		}
		return table.String(v.String())
	case bool:
		return table.Bool(v)
	case string:
		if table.IsNumericType(ct) {
			if f, ok := table.ParseStrictNumber(v); ok {
				return table.NumberRaw(f, strings.TrimSpace(v))
			}
		}
		return table.String(v)
	default:
		return table.String(fmt.Sprint(v))
	}
}

// Outlier thresholds.
const (
	zScoreThreshold         = 3.0
	modifiedZScoreThreshold = 3.5
	iqrFactor               = 1.5
)

func removeOutliers(t *table.Table, op Operation) (*table.Table, Summary, error) {
	c, err := t.Index(op.Column)
	if err != nil {
		return nil, Summary{}, err
	}
	if ct := t.Columns[c].Type; !table.IsNumericType(ct) {
		return nil, Summary{}, common.TypeMismatch("column %q is %s, outlier removal requires a numeric column", op.Column, ct)
	}

	xs := numbers(t, c)
	isOutlier := outlierTest(op.Method, xs)

	kept := make([][]table.Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		if f, ok := row[c].Float(); ok && isOutlier(f) {
			continue
		}
		kept = append(kept, row)
	}
	return withTextTypes(t, kept), Summary{Affected: len(t.Rows) - len(kept), Unit: "rows"}, nil
}

// outlierTest builds the predicate for method over the sample xs. A sample
// with no spread flags nothing.
func outlierTest(method string, xs []float64) func(float64) bool {
	none := func(float64) bool { return false }
	if len(xs) == 0 {
		return none
	}

	switch method {
	case MethodZScore:
		mu := mean(xs)
		sd := stddev(xs, mu)
		if sd == 0 || math.IsNaN(sd) {
			return none
		}
		return func(x float64) bool { return math.Abs(x-mu)/sd > zScoreThreshold }

	case MethodModifiedZScore:
		med := median(xs)
		dev := make([]float64, len(xs))
		for i, x := range xs {
			dev[i] = math.Abs(x - med)
		}
		mad := median(dev)
		if mad == 0 || math.IsNaN(mad) {
			return none
		}
		return func(x float64) bool { return math.Abs(0.6745*(x-med)/mad) > modifiedZScoreThreshold }

	default:
		s := sorted(xs)
		q1, q3 := quantile(s, 0.25), quantile(s, 0.75)
		iqr := q3 - q1
		lo, hi := q1-iqrFactor*iqr, q3+iqrFactor*iqr
		return func(x float64) bool { return x < lo || x > hi }
	}
}

func convertTypes(t *table.Table, op Operation) (*table.Table, Summary, error) {
	cols, err := t.Indexes(op.Columns)
	if err != nil {
		return nil, Summary{}, err
	}

	rows := make([][]table.Value, len(t.Rows))
	converted, failed := 0, 0
	for r, row := range t.Rows {
		w := copyOnWrite{row: row}
		for _, c := range cols {
			v := row[c]
			if v.IsNull() {
				continue
			}
			nv, ok := ConvertValue(v, op.TargetType)
			if ok {
				converted++
			} else {
				failed++
			}
			if !nv.Identical(v) {
				w.set(c, nv)
			}
		}
		rows[r] = w.row
	}
	return withColumnTypes(t, rows, cols...), Summary{Affected: converted, Unit: "cells", Failures: failed}, nil
}

// ConvertValue converts a non-null cell to target using the lenient
// parsers. Cells that cannot be converted become null and ok is false.
func ConvertValue(v table.Value, target string) (table.Value, bool) {
	switch target {
	case TargetNumeric:
		switch v.Kind() {
		case table.KindNumber:
			return v, true
		case table.KindBool:
			if b, _ := v.BoolValue(); b {
				return table.Number(1), true
			}
			return table.Number(0), true
		case table.KindString:
			if f, ok := table.ParseNumber(v.Text()); ok {
				return table.Number(f), true
			}
		}

	case TargetString:
		return table.String(v.Text()), true

	case TargetDatetime:
		switch v.Kind() {
		case table.KindTime:
			return v, true
		case table.KindString, table.KindNumber:
			if d, ok := table.ParseDate(v.Text()); ok {
				return table.Time(d), true
			}
		}

	case TargetBoolean:
		switch v.Kind() {
		case table.KindBool:
			return v, true
		case table.KindNumber:
			f, _ := v.Float()
			return table.Bool(f != 0), true
		case table.KindString:
			if b, ok := table.ParseBool(v.Text()); ok {
				return table.Bool(b), true
			}
		}
	}
	return table.Null(), false
}

func cleanText(t *table.Table, op Operation) (*table.Table, Summary, error) {
	cols, err := t.Indexes(op.Columns)
	if err != nil {
		return nil, Summary{}, err
	}
	caseType := op.caseType()

	rows := make([][]table.Value, len(t.Rows))
	changed := 0
	for r, row := range t.Rows {
		w := copyOnWrite{row: row}
		for _, c := range cols {
			s, ok := row[c].Str()
			if !ok {
				continue
			}
			if cleaned := CleanString(s, op.TextOperations, caseType); cleaned != s {
				w.set(c, table.String(cleaned))
				changed++
			}
		}
		rows[r] = w.row
	}
	return withTextTypes(t, rows, cols...), Summary{Affected: changed, Unit: "cells"}, nil
}

func removeEmpty(t *table.Table, target string) (*table.Table, Summary) {
	if target == TargetColumns {
		var keep []int
		for c := range t.Columns {
			for _, row := range t.Rows {
				if !row[c].IsBlank() {
					keep = append(keep, c)
					break
				}
			}
		}
		out := &table.Table{
			Columns: make([]table.Column, len(keep)),
			Rows:    make([][]table.Value, len(t.Rows)),
		}
		for i, c := range keep {
			out.Columns[i] = t.Columns[c]
		}
		for r, row := range t.Rows {
			nr := make([]table.Value, len(keep))
			for i, c := range keep {
				nr[i] = row[c]
			}
			out.Rows[r] = nr
		}
		return out, Summary{Affected: len(t.Columns) - len(keep), Unit: "columns"}
	}

	kept := make([][]table.Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		if !IsBlankRow(row) {
			kept = append(kept, row)
		}
	}
	return withTextTypes(t, kept), Summary{Affected: len(t.Rows) - len(kept), Unit: "rows"}
}

// IsBlankRow reports whether every cell in row is blank.
func IsBlankRow(row []table.Value) bool {
	for _, v := range row {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

func mergeValues(t *table.Table, op Operation) (*table.Table, Summary, error) {
	c, err := t.Index(op.Column)
	if err != nil {
		return nil, Summary{}, err
	}

	targets := make(map[string]struct{}, len(op.Values))
	for _, v := range op.Values {
		targets[v] = struct{}{}
	}
	canonical := table.String(op.Canonical)

	rows := make([][]table.Value, len(t.Rows))
	merged := 0
	for r, row := range t.Rows {
		v := row[c]
		text := v.Text()
		if _, hit := targets[text]; v.IsNull() || !hit || text == op.Canonical {
			rows[r] = row
			continue
		}
		w := copyOnWrite{row: row}
		w.set(c, canonical)
		if v.Kind() == table.KindNumber {
			if f, ok := table.ParseStrictNumber(op.Canonical); ok {
				w.set(c, table.NumberRaw(f, op.Canonical))
			}
		}
		rows[r] = w.row
		merged++
	}
	return withTextTypes(t, rows, c), Summary{Affected: merged, Unit: "cells"}, nil
}
