// Package table defines the typed tabular data model shared by the engine:
// a closed set of cell kinds, typed columns and an ordered list of rows.
package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the kind of a single cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "datetime"
	default:
		return "null"
	}
}

// Value is one cell. The zero Value is null.
//
// Values parsed from a source keep the source text so that exports and
// text comparisons see exactly what was uploaded.
type Value struct {
	kind Kind
	num  float64
	b    bool
	t    time.Time
	str  string // payload for strings, source text for the other kinds
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// NumberRaw returns a numeric value that renders as raw.
func NumberRaw(f float64, raw string) Value { return Value{kind: KindNumber, num: f, str: raw} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// BoolRaw returns a boolean value that renders as raw.
func BoolRaw(b bool, raw string) Value { return Value{kind: KindBool, b: b, str: raw} }

// Time returns a datetime value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// TimeRaw returns a datetime value that renders as raw.
func TimeRaw(t time.Time, raw string) Value { return Value{kind: KindTime, t: t, str: raw} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric payload. ok is false for non-numeric cells.
func (v Value) Float() (f float64, ok bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the string payload. ok is false for non-string cells.
func (v Value) Str() (s string, ok bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// BoolValue returns the boolean payload.
func (v Value) BoolValue() (b bool, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// TimeValue returns the datetime payload.
func (v Value) TimeValue() (t time.Time, ok bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Text renders the value as text. Null renders as "".
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	}
	if v.str != "" {
		return v.str
	}
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.num)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindTime:
		return FormatTime(v.t)
	}
	return ""
}

// Key returns a canonical identity used for equality and grouping.
// Numbers compare by value, so "1.50" and "1.5" share a key.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return "n" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return "s" + v.str
	case KindBool:
		if v.b {
			return "b1"
		}
		return "b0"
	case KindTime:
		return "t" + v.t.UTC().Format(time.RFC3339Nano)
	default:
		return "z"
	}
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.Key() == o.Key()
}

// Identical reports whether v and o are equal and render the same text.
func (v Value) Identical(o Value) bool {
	return v.Equal(o) && v.Text() == o.Text()
}

// IsBlank reports whether the cell is null or a whitespace-only string.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	}
	return false
}

// Interface returns the value as a plain Go value for JSON encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil
		}
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindTime:
		return v.Text()
	default:
		return nil
	}
}

// Compare orders two values: numbers numerically, everything else by text.
// Nulls sort after all other values.
func Compare(a, b Value) int {
	if a.IsNull() || b.IsNull() {
		switch {
		case a.IsNull() && b.IsNull():
			return 0
		case a.IsNull():
			return 1
		default:
			return -1
		}
	}
	if a.kind == KindNumber && b.kind == KindNumber {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	if a.kind == KindTime && b.kind == KindTime {
		return a.t.Compare(b.t)
	}
	return strings.Compare(a.Text(), b.Text())
}

// FormatNumber renders f without a trailing ".0" for integral values.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatTime renders dates without a clock component as YYYY-MM-DD.
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
