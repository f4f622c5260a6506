// Package cluster groups near-duplicate categorical values by fingerprint
// and suggests a canonical value for each group.
package cluster

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/danchege/Alchemist/internal/common"
)

const (
	DefaultMaxUnique = 2000
	MinMaxUnique     = 50
	MaxMaxUnique     = 10000

	// MaxSuggestions caps the number of clusters returned.
	MaxSuggestions = 200
)

// Frequency is one distinct value and how often it occurs.
type Frequency struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Suggestion is a group of values sharing a fingerprint.
type Suggestion struct {
	Key       string      `json:"key"`
	Canonical string      `json:"canonical"`
	Members   []Frequency `json:"members"`
	Size      int         `json:"size"`
}

// Fingerprint normalizes a value for near-duplicate detection: accents are
// stripped, case is folded, punctuation and symbols are removed, and the
// remaining whitespace-separated tokens are deduplicated, sorted and joined
// with single spaces.
func Fingerprint(value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	s = cases.Fold().String(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case r == '-' || r == '_' || r == '/':
			return ' '
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsControl(r):
			return -1
		default:
			return ' '
		}
	}, s)

	tokens := strings.Fields(s)
	sort.Strings(tokens)
	out := tokens[:0]
	for i, tok := range tokens {
		if i > 0 && tok == tokens[i-1] {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// ClampMaxUnique bounds a requested distinct-value limit. Zero or negative
// selects the default.
func ClampMaxUnique(n int) int {
	if n <= 0 {
		return DefaultMaxUnique
	}
	if n < MinMaxUnique {
		return MinMaxUnique
	}
	if n > MaxMaxUnique {
		return MaxMaxUnique
	}
	return n
}

// Suggest groups a column's distinct values by fingerprint.
//
// It fails with ErrTooManyDistinctValues when the frequency table holds
// more than maxUnique entries. Groups with fewer than two members are
// dropped. The canonical value of a group is its most frequent member,
// ties broken by the smaller value.
func Suggest(freqs []Frequency, maxUnique int) ([]Suggestion, error) {
	if len(freqs) > maxUnique {
		return nil, fmt.Errorf("%w: %d distinct values exceeds limit %d",
			common.ErrTooManyDistinctValues, len(freqs), maxUnique)
	}

	groups := make(map[string][]Frequency)
	var order []string
	for _, f := range freqs {
		fp := Fingerprint(f.Value)
		if fp == "" {
			continue
		}
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], f)
	}

	var out []Suggestion
	for _, fp := range order {
		members := groups[fp]
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].Count != members[j].Count {
				return members[i].Count > members[j].Count
			}
			return members[i].Value < members[j].Value
		})
		out = append(out, Suggestion{
			Key:       fp,
			Canonical: members[0].Value,
			Members:   members,
			Size:      len(members),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].Canonical < out[j].Canonical
	})
	if len(out) > MaxSuggestions {
		out = out[:MaxSuggestions]
	}
	return out, nil
}

// Count builds a frequency table from raw values, skipping empty ones.
// The result is ordered by count descending, then value.
func Count(values []string) []Frequency {
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
	}
	out := make([]Frequency, 0, len(counts))
	for v, c := range counts {
		out = append(out, Frequency{Value: v, Count: c})
	}
	SortFrequencies(out)
	return out
}

// SortFrequencies orders by count descending, then value ascending.
func SortFrequencies(freqs []Frequency) {
	sort.Slice(freqs, func(i, j int) bool {
		if freqs[i].Count != freqs[j].Count {
			return freqs[i].Count > freqs[j].Count
		}
		return freqs[i].Value < freqs[j].Value
	})
}
