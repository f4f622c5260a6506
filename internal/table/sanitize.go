package table

import (
	"strconv"
	"strings"
	"unicode"
)

// SanitizeColumnNames makes column names safe to use as SQL identifiers:
// only letters, digits and underscores survive, runs of underscores are
// collapsed, names starting with a digit get a "col_" prefix, empty names
// become "unnamed_column", and duplicates get a numeric suffix.
func SanitizeColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))

	for i, name := range names {
		clean := sanitizeName(name)

		if n, ok := seen[clean]; ok {
			candidate := clean
			for {
				n++
				candidate = clean + "_" + strconv.Itoa(n)
				if _, taken := seen[candidate]; !taken {
					break
				}
			}
			seen[clean] = n
			clean = candidate
		}
		seen[clean] = 0
		out[i] = clean
	}
	return out
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")

	if s == "" {
		return "unnamed_column"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "col_" + s
	}
	return s
}
