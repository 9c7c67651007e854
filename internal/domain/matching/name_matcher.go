package matching

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the minimum similarity for a fuzzy name match.
const DefaultThreshold = 0.85

// NameMatcher scores two normalized names in [0, 1], where 1 is identical.
type NameMatcher interface {
	Similarity(a, b string) float64
}

// LevenshteinMatcher scores names as 1 - distance/max(len(a), len(b)),
// with lengths counted in runes.
type LevenshteinMatcher struct{}

func (LevenshteinMatcher) Similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
