package table

import (
	"errors"
	"testing"
	"time"

	"github.com/danchege/Alchemist/internal/common"
)

func sampleTable() *Table {
	return New([]string{"name", "age"}, [][]Value{
		{String("alice"), Number(30)},
		{String("bob"), Null()},
	})
}

func TestNew_InfersTypes(t *testing.T) {
	tbl := sampleTable()
	if tbl.Columns[0].Type != TypeString {
		t.Errorf("name type = %v, want %v", tbl.Columns[0].Type, TypeString)
	}
	if tbl.Columns[1].Type != TypeNumber {
		t.Errorf("age type = %v, want %v", tbl.Columns[1].Type, TypeNumber)
	}
}

func TestIndex_ColumnNotFound(t *testing.T) {
	tbl := sampleTable()
	if _, err := tbl.Index("missing"); !errors.Is(err, common.ErrColumnNotFound) {
		t.Errorf("Index(missing) error = %v, want ErrColumnNotFound", err)
	}
	if i, err := tbl.Index("age"); err != nil || i != 1 {
		t.Errorf("Index(age) = %d, %v, want 1, nil", i, err)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	tbl := sampleTable()
	c := tbl.Clone()
	c.Rows[0][0] = String("changed")
	if got := tbl.Rows[0][0].Text(); got != "alice" {
		t.Errorf("original mutated: %q", got)
	}
	if Equal(tbl, c) {
		t.Error("Equal() = true after change, want false")
	}
}

func TestEqual(t *testing.T) {
	if !Equal(sampleTable(), sampleTable()) {
		t.Error("Equal() = false for identical tables")
	}
	other := sampleTable()
	other.Rows[1][1] = Number(0)
	if Equal(sampleTable(), other) {
		t.Error("Equal() = true for different tables")
	}
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []Value
		want   ColumnType
	}{
		{"numbers", []Value{Number(1), Null(), Number(2)}, TypeNumber},
		{"strings", []Value{String("a")}, TypeString},
		{"mixed", []Value{String("a"), Number(1)}, TypeMixed},
		{"bools", []Value{Bool(true)}, TypeBool},
		{"dates", []Value{Time(time.Now())}, TypeDatetime},
		{"empty", []Value{Null(), Null()}, TypeEmpty},
	}

	for _, tt := range tests {
		if got := InferType(tt.values); got != tt.want {
			t.Errorf("InferType(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"integral number", Number(3), "3"},
		{"fraction", Number(2.5), "2.5"},
		{"raw number", NumberRaw(2.5, "2.50"), "2.50"},
		{"bool", Bool(true), "true"},
		{"date", Time(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), "2024-01-02"},
		{"datetime", Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)), "2024-01-02 03:04:05"},
	}

	for _, tt := range tests {
		if got := tt.v.Text(); got != tt.want {
			t.Errorf("%s: Text() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestValue_EqualIgnoresRawFormatting(t *testing.T) {
	a := NumberRaw(1.5, "1.50")
	b := Number(1.5)
	if !a.Equal(b) {
		t.Error("Equal() = false, want true")
	}
	if a.Identical(b) {
		t.Error("Identical() = true, want false")
	}
	if String("1").Equal(Number(1)) {
		t.Error("string and number compared equal")
	}
}

func TestCompare_NullsLast(t *testing.T) {
	if Compare(Null(), Number(1)) <= 0 {
		t.Error("null should sort after numbers")
	}
	if Compare(Number(2), Number(10)) >= 0 {
		t.Error("numbers should compare numerically")
	}
	if Compare(String("b"), String("a")) <= 0 {
		t.Error("strings should compare lexically")
	}
}

func TestValue_IsBlank(t *testing.T) {
	if !Null().IsBlank() || !String("  ").IsBlank() {
		t.Error("null and whitespace should be blank")
	}
	if Number(0).IsBlank() || String("x").IsBlank() {
		t.Error("0 and x should not be blank")
	}
}
