package ops

import (
	"math"
	"sort"

	"github.com/danchege/Alchemist/internal/table"
)

// numbers returns the non-null numeric cells of column c.
func numbers(t *table.Table, c int) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if f, ok := row[c].Float(); ok {
			out = append(out, f)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64, mu float64) float64 {
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func sorted(xs []float64) []float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s
}

// quantile uses linear interpolation between closest ranks. s must be sorted.
func quantile(s []float64, q float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(s)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return s[int(lo)]
	}
	return s[int(lo)] + (pos-lo)*(s[int(hi)]-s[int(lo)])
}

func median(xs []float64) float64 {
	return quantile(sorted(xs), 0.5)
}

// mode returns the most frequent non-null value of column c, ties broken by
// the smaller value. ok is false when the column has no values.
func mode(t *table.Table, c int) (table.Value, bool) {
	counts := make(map[string]int)
	first := make(map[string]table.Value)
	for _, row := range t.Rows {
		v := row[c]
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if _, ok := first[k]; !ok {
			first[k] = v
		}
		counts[k]++
	}

	var (
		best  table.Value
		top   int
		found bool
	)
	for k, n := range counts {
		v := first[k]
		if !found || n > top || (n == top && table.Compare(v, best) < 0) {
			best, top, found = v, n, true
		}
	}
	return best, found
}
