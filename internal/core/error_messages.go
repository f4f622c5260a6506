package core

// error_messages.go maps engine errors to messages users can act on.
//
// # Error Codes Reference
//
// Codes are grouped by category. Users quote the code to support staff.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: upload exceeds the size limit
//	FILE002 - Unsupported format: extension is not csv, tsv, txt, json, xlsx or sqlite
//	FILE003 - Corrupt file: the file could not be parsed
//	FILE004 - No file: the request carried no file
//	FILE005 - Empty file: the file has no content
//
// # Operation Errors (OP001-OP099)
//
//	OP001 - Column not found
//	OP002 - Type mismatch: the operation needs a different column type
//	OP003 - Invalid operation: the request is malformed
//	OP004 - Not available for large files
//
// # History Errors (HIST001-HIST099)
//
//	HIST001 - Nothing to undo
//	HIST002 - Nothing to redo
//
// # Clustering Errors (CLU001-CLU099)
//
//	CLU001 - Too many distinct values to cluster
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found or expired
//	SES002 - Session closed
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: too many uploads in progress
//	UPL002 - Request cancelled
//	UPL003 - Request timed out
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// original error.
//
// # Matching
//
// Rules are checked in order. A rule with a target matches when
// errors.Is(err, target); a rule with a pattern also requires the
// lower-cased message to contain it. The first match wins, so specific
// rules come before general ones.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danchege/Alchemist/internal/common"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorRule struct {
	target  error
	pattern string
	status  int
	msg     UserMessage
}

func (r errorRule) matches(err error, lower string) bool {
	if r.target != nil && !errors.Is(err, r.target) {
		return false
	}
	return r.pattern == "" || strings.Contains(lower, r.pattern)
}

var errorRules = []errorRule{
	// =========================================================================
	// File Errors
	// =========================================================================
	{
		target: common.ErrFileTooLarge,
		status: http.StatusRequestEntityTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		target: common.ErrUnsupportedFormat,
		status: http.StatusUnsupportedMediaType,
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a CSV, TSV, TXT, JSON, XLSX or SQLite file",
			Code:    "FILE002",
		},
	},
	{
		target:  common.ErrCorruptSource,
		pattern: "empty file",
		status:  http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data",
			Code:    "FILE005",
		},
	},
	{
		target: common.ErrCorruptSource,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that every row has the same number of fields and the file is saved as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		status:  http.StatusBadRequest,
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Operation Errors
	// =========================================================================
	{
		target: common.ErrColumnNotFound,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "Column not found",
			Action:  "Refresh the page and pick a column from the current table",
			Code:    "OP001",
		},
	},
	{
		target: common.ErrTypeMismatch,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "This operation does not apply to the column's type",
			Action:  "Convert the column first or choose a different method",
			Code:    "OP002",
		},
	},
	{
		target: common.ErrInvalidOperation,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "The operation request is invalid",
			Action:  "Check the operation parameters and try again",
			Code:    "OP003",
		},
	},
	{
		target: common.ErrUnsupportedInLargeFileMode,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "This operation is not available for large files",
			Action:  "Use duplicate removal, empty row removal, text cleaning or value merging",
			Code:    "OP004",
		},
	},

	// =========================================================================
	// History Errors
	// =========================================================================
	{
		target: common.ErrNothingToUndo,
		status: http.StatusConflict,
		msg: UserMessage{
			Message: "Nothing to undo",
			Action:  "No changes have been made yet",
			Code:    "HIST001",
		},
	},
	{
		target: common.ErrNothingToRedo,
		status: http.StatusConflict,
		msg: UserMessage{
			Message: "Nothing to redo",
			Action:  "Undo a change before redoing it",
			Code:    "HIST002",
		},
	},

	// =========================================================================
	// Clustering Errors
	// =========================================================================
	{
		target: common.ErrTooManyDistinctValues,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The column has too many distinct values to cluster",
			Action:  "Filter the data or raise the distinct value limit",
			Code:    "CLU001",
		},
	},

	// =========================================================================
	// Session Errors
	// =========================================================================
	{
		target: common.ErrSessionNotFound,
		status: http.StatusNotFound,
		msg: UserMessage{
			Message: "Session not found",
			Action:  "The session may have expired. Please upload the file again",
			Code:    "SES001",
		},
	},
	{
		target: common.ErrSessionClosed,
		status: http.StatusGone,
		msg: UserMessage{
			Message: "This session has been closed",
			Action:  "Please upload the file again",
			Code:    "SES002",
		},
	},

	// =========================================================================
	// Upload Errors
	// =========================================================================
	{
		target: ErrTooManyUploads,
		status: http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		target: context.Canceled,
		status: http.StatusRequestTimeout,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		target: context.DeadlineExceeded,
		status: http.StatusGatewayTimeout,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
	{
		pattern: "http: request body too large",
		status:  http.StatusRequestEntityTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
}

// defaultMessage is returned when no rule matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

func lookupRule(err error) (errorRule, bool) {
	lower := strings.ToLower(err.Error())
	for _, r := range errorRules {
		if r.matches(err, lower) {
			return r, true
		}
	}
	return errorRule{}, false
}

// MapError converts an error to a user-friendly message. If nothing
// matches, a generic fallback with code ERR000 is returned.
//
// Example:
//
//	msg := MapError(common.ColumnNotFound("age"))
//	// msg.Code == "OP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if r, ok := lookupRule(err); ok {
		return r.msg
	}
	return defaultMessage
}

// HTTPStatus returns the status code a handler should answer err with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if r, ok := lookupRule(err); ok {
		return r.status
	}
	return http.StatusInternalServerError
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known rule rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with its user-facing message. The
// original error is preserved for logging.
type UserError struct {
	Technical error
	User      UserMessage
	Status    int
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
		Status:    HTTPStatus(err),
	}
}
