// Package common provides the error taxonomy shared by the data engine packages.
package common

import (
	"errors"
	"fmt"
)

// Load-time errors. The session is not created.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptSource     = errors.New("corrupt source")
	ErrFileTooLarge      = errors.New("file too large")
)

// Operation-time errors. Session state is left unchanged.
var (
	ErrColumnNotFound             = errors.New("column not found")
	ErrTypeMismatch               = errors.New("type mismatch")
	ErrInvalidOperation           = errors.New("invalid operation")
	ErrUnsupportedInLargeFileMode = errors.New("operation not supported in large file mode")
)

// History errors. These are soft failures.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Clustering errors.
var (
	ErrTooManyDistinctValues = errors.New("too many distinct values")
)

// Session lifecycle errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// ColumnNotFound returns ErrColumnNotFound annotated with the column name.
func ColumnNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// TypeMismatch returns ErrTypeMismatch annotated with a reason.
func TypeMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTypeMismatch, fmt.Sprintf(format, args...))
}

// InvalidOperation returns ErrInvalidOperation annotated with a reason.
func InvalidOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// OpError records which operation failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp wraps err with the operation name. Returns nil if err is nil.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OpError
	if errors.As(err, &existing) && existing.Op == op {
		return err
	}
	return &OpError{Op: op, Err: err}
}

// IsSoft reports whether err is a soft failure that callers should surface
// without treating it as a fault.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNothingToUndo) || errors.Is(err, ErrNothingToRedo)
}
