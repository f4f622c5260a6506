package ops

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanString applies the text operations in order. normalize_case uses
// caseType, which defaults to lower.
func CleanString(s string, textOps []string, caseType string) string {
	for _, op := range textOps {
		switch op {
		case TrimWhitespace:
			s = strings.TrimSpace(s)
		case NormalizeCase:
			s = normalizeCase(s, caseType)
		}
	}
	return s
}

func normalizeCase(s, caseType string) string {
	switch caseType {
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseTitle:
		// Casers carry state and are not safe for concurrent use.
		return cases.Title(language.Und).String(s)
	default:
		return strings.ToLower(s)
	}
}
