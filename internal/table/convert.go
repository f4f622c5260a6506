package table

// convert.go parses raw cell text into typed values.
//
// Two families of parsers live here:
//   - strict parsers used while loading a source, so a column is only typed
//     numeric when every cell is a plain number;
//   - lenient parsers used by explicit type conversion, which accept
//     currency symbols, thousands separators, accounting negatives and a
//     wide range of date layouts.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006 15:04:05", "1/2/2006 15:04", "01/02/2006 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006",
		"20060102",
	}
)

// missingTokens are cell values read as null when loading a source.
var missingTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissingToken reports whether raw denotes a missing value in a source file.
func IsMissingToken(raw string) bool {
	_, ok := missingTokens[strings.TrimSpace(raw)]
	return ok
}

// ParseStrictNumber parses a plain decimal or scientific number.
// Surrounding whitespace is ignored; hex, NaN and infinities are rejected.
func ParseStrictNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumber converts messy numeric text to a float.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	// pgtype.Numeric does not scan exponents.
	if strings.ContainsAny(s, "eE") {
		return ParseStrictNumber(s)
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return 0, false
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return 0, false
	}
	return f.Float64, true
}

// ParseDate converts a string to a time using a list of known layouts.
// Two-digit years are resolved with TwoDigitYearPivot.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseBoolLiteral only accepts the words true and false. Used when
// inferring column types so that 0/1 columns stay numeric.
func ParseBoolLiteral(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ParseColumn types a column of raw source cells. Missing tokens become
// null. The column is numeric if every other cell is a plain number,
// boolean if every other cell is true/false, and string otherwise.
func ParseColumn(raw []string) (ColumnType, []Value) {
	values := make([]Value, len(raw))
	numeric, boolean, present := true, true, false
	for _, s := range raw {
		if IsMissingToken(s) {
			continue
		}
		present = true
		if numeric {
			if _, ok := ParseStrictNumber(s); !ok {
				numeric = false
			}
		}
		if boolean {
			if _, ok := ParseBoolLiteral(s); !ok {
				boolean = false
			}
		}
		if !numeric && !boolean {
			break
		}
	}

	for i, s := range raw {
		if IsMissingToken(s) {
			continue
		}
		switch {
		case numeric:
			f, _ := ParseStrictNumber(s)
			values[i] = NumberRaw(f, s)
		case boolean:
			b, _ := ParseBoolLiteral(s)
			values[i] = BoolRaw(b, s)
		default:
			values[i] = String(s)
		}
	}

	switch {
	case !present:
		return TypeEmpty, values
	case numeric:
		return TypeNumber, values
	case boolean:
		return TypeBool, values
	}
	return TypeString, values
}

// FromRecords builds a table from a header and raw records. Short records
// are padded with missing cells; long records are rejected by the caller.
func FromRecords(header []string, records [][]string) *Table {
	t := &Table{Columns: make([]Column, len(header)), Rows: make([][]Value, len(records))}
	for r := range records {
		t.Rows[r] = make([]Value, len(header))
	}

	raw := make([]string, len(records))
	for c, name := range header {
		for r, rec := range records {
			if c < len(rec) {
				raw[r] = rec[c]
			} else {
				raw[r] = ""
			}
		}
		ct, values := ParseColumn(raw)
		t.Columns[c] = Column{Name: name, Type: ct}
		for r := range records {
			t.Rows[r][c] = values[r]
		}
	}
	return t
}

// Fold lowercases s for case-insensitive comparisons.
func Fold(s string) string {
	return strings.ToLower(s)
}

// TypedValue converts stored cell text back into a value of a column
// typed ct. It is the inverse of the typing done by ParseColumn.
func TypedValue(raw string, ct ColumnType) Value {
	switch ct {
	case TypeNumber:
		if f, ok := ParseStrictNumber(raw); ok {
			return NumberRaw(f, raw)
		}
	case TypeBool:
		if b, ok := ParseBoolLiteral(raw); ok {
			return BoolRaw(b, raw)
		}
	}
	return String(raw)
}

// RetypeFromText types a column from the text of its cells using the
// rules of ParseColumn, the way the SQLite store types a column from its
// stored text. Only null cells count as missing. Columns holding
// datetimes keep their cells.
func RetypeFromText(values []Value) (ColumnType, []Value) {
	numeric, boolean, present := true, true, false
	for _, v := range values {
		switch v.Kind() {
		case KindNull:
			continue
		case KindTime:
			return InferType(values), values
		}
		present = true
		s := v.Text()
		if numeric {
			if _, ok := ParseStrictNumber(s); !ok {
				numeric = false
			}
		}
		if boolean {
			if _, ok := ParseBoolLiteral(s); !ok {
				boolean = false
			}
		}
	}

	ct := TypeString
	switch {
	case !present:
		return TypeEmpty, values
	case numeric:
		ct = TypeNumber
	case boolean:
		ct = TypeBool
	}

	out := make([]Value, len(values))
	for i, v := range values {
		if v.IsNull() {
			continue
		}
		out[i] = TypedValue(v.Text(), ct)
	}
	return ct, out
}
