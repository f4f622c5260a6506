// Package ops implements the cleaning operations applied to a table.
//
// Every operation is a pure function of (table, parameters): the input table
// is never modified, and the result shares unchanged rows with the input.
package ops

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/table"
)

// Kind names an operation variant.
type Kind string

const (
	RemoveDuplicates Kind = "remove_duplicates"
	FillMissing      Kind = "fill_missing"
	RemoveOutliers   Kind = "remove_outliers"
	ConvertTypes     Kind = "convert_types"
	CleanText        Kind = "clean_text"
	RemoveEmpty      Kind = "remove_empty"
	MergeValues      Kind = "merge_values"
)

// Kinds lists every operation kind.
var Kinds = []Kind{RemoveDuplicates, FillMissing, RemoveOutliers, ConvertTypes, CleanText, RemoveEmpty, MergeValues}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", common.InvalidOperation("unknown operation %q", s)
}

// Fill methods.
const (
	MethodMean   = "mean"
	MethodMedian = "median"
	MethodMode   = "mode"
	MethodZero   = "zero"
	MethodValue  = "value"
)

// Outlier methods.
const (
	MethodIQR            = "iqr"
	MethodZScore         = "zscore"
	MethodModifiedZScore = "modified_zscore"
)

// Conversion targets.
const (
	TargetNumeric  = "numeric"
	TargetString   = "string"
	TargetDatetime = "datetime"
	TargetBoolean  = "boolean"
)

// Text operations and case types.
const (
	TrimWhitespace = "trim_whitespace"
	NormalizeCase  = "normalize_case"

	CaseLower = "lower"
	CaseUpper = "upper"
	CaseTitle = "title"
)

// Empty targets.
const (
	TargetRows    = "rows"
	TargetColumns = "columns"
)

// Operation is a tagged request to transform a table. Only the fields
// relevant to Type are read.
type Operation struct {
	Type Kind `json:"type" mapstructure:"type" validate:"required,oneof=remove_duplicates fill_missing remove_outliers convert_types clean_text remove_empty merge_values"`

	Column  string   `json:"column,omitempty" mapstructure:"column"`
	Columns []string `json:"columns,omitempty" mapstructure:"columns" validate:"omitempty,dive,required"`

	// fill_missing: mean|median|mode|zero|value; remove_outliers: iqr|zscore|modified_zscore
	Method string `json:"method,omitempty" mapstructure:"method" validate:"omitempty,oneof=mean median mode zero value iqr zscore modified_zscore"`
	Value  any    `json:"value,omitempty" mapstructure:"value"`

	TargetType string `json:"target_type,omitempty" mapstructure:"target_type" validate:"omitempty,oneof=numeric string datetime boolean"`

	TextOperations []string `json:"text_operations,omitempty" mapstructure:"text_operations" validate:"omitempty,dive,oneof=trim_whitespace normalize_case"`
	CaseType       string   `json:"case_type,omitempty" mapstructure:"case_type" validate:"omitempty,oneof=lower upper title"`

	Target string `json:"target,omitempty" mapstructure:"target" validate:"omitempty,oneof=rows columns"`

	Canonical string   `json:"canonical,omitempty" mapstructure:"canonical"`
	Values    []string `json:"values,omitempty" mapstructure:"values"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the operation's tags and the fields its variant requires.
func (op Operation) Validate() error {
	if err := validate.Struct(op); err != nil {
		return common.InvalidOperation("%s", formatValidation(err))
	}

	switch op.Type {
	case FillMissing:
		if op.Column == "" {
			return common.InvalidOperation("fill_missing requires column")
		}
		switch op.Method {
		case MethodMean, MethodMedian, MethodMode, MethodZero:
		case MethodValue:
			if op.Value == nil {
				return common.InvalidOperation("fill_missing with method value requires value")
			}
		default:
			return common.InvalidOperation("fill_missing method %q is not supported", op.Method)
		}
	case RemoveOutliers:
		if op.Column == "" {
			return common.InvalidOperation("remove_outliers requires column")
		}
		switch op.Method {
		case MethodIQR, MethodZScore, MethodModifiedZScore:
		default:
			return common.InvalidOperation("remove_outliers method %q is not supported", op.Method)
		}
	case ConvertTypes:
		if len(op.Columns) == 0 || op.TargetType == "" {
			return common.InvalidOperation("convert_types requires columns and target_type")
		}
	case CleanText:
		if len(op.Columns) == 0 {
			return common.InvalidOperation("clean_text requires columns")
		}
	case MergeValues:
		if op.Column == "" || len(op.Values) == 0 {
			return common.InvalidOperation("merge_values requires column and values")
		}
	}
	return nil
}

func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Describe returns a short human-readable description for history lists.
func (op Operation) Describe() string {
	switch op.Type {
	case RemoveDuplicates:
		return "Remove duplicate rows"
	case FillMissing:
		return fmt.Sprintf("Fill missing values in %q (%s)", op.Column, op.Method)
	case RemoveOutliers:
		return fmt.Sprintf("Remove outliers in %q (%s)", op.Column, op.Method)
	case ConvertTypes:
		return fmt.Sprintf("Convert %s to %s", strings.Join(op.Columns, ", "), op.TargetType)
	case CleanText:
		return fmt.Sprintf("Clean text in %s (%s)", strings.Join(op.Columns, ", "), strings.Join(op.TextOperations, ", "))
	case RemoveEmpty:
		return fmt.Sprintf("Remove empty %s", op.target())
	case MergeValues:
		return fmt.Sprintf("Merge %d values into %q in %q", len(op.Values), op.Canonical, op.Column)
	default:
		return string(op.Type)
	}
}

// DescribeAll joins the descriptions of a batch.
func DescribeAll(batch []Operation) string {
	if len(batch) == 1 {
		return batch[0].Describe()
	}
	names := make([]string, len(batch))
	for i, op := range batch {
		names[i] = string(op.Type)
	}
	return "Clean operations: " + strings.Join(names, ", ")
}

func (op Operation) target() string {
	if op.Target == "" {
		return TargetRows
	}
	return op.Target
}

func (op Operation) caseType() string {
	if op.CaseType == "" {
		return CaseLower
	}
	return op.CaseType
}

// ValueText renders the fill value as text.
func (op Operation) ValueText() string {
	switch v := op.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return table.FormatNumber(v)
	default:
		return fmt.Sprint(v)
	}
}

// Summary reports what an operation did.
type Summary struct {
	Operation string `json:"operation"`
	Affected  int    `json:"affected"`
	Unit      string `json:"unit"`
	Failures  int    `json:"failures,omitempty"`
}
