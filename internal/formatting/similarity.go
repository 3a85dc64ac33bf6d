package formatting

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
)

// Similarity scores how well candidate matches reference, from 0 (unrelated) to 1.
type Similarity interface {
	Score(candidate, reference string) float64
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(candidate, reference string) float64

func (f SimilarityFunc) Score(candidate, reference string) float64 { return f(candidate, reference) }

// DiffRatio is 1 - deleted/len(candidate), where deleted counts the candidate
// characters a character-level diff removes to reach reference. Extra
// characters in reference are not penalized.
type DiffRatio struct{}

func (DiffRatio) Score(candidate, reference string) float64 {
	a := strings.Split(candidate, "")
	if len(a) == 0 {
		return 0
	}
	b := strings.Split(reference, "")

	deleted := 0
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'd' || op.Tag == 'r' {
			deleted += op.I2 - op.I1
		}
	}
	return 1 - float64(deleted)/float64(len(a))
}

// LevenshteinRatio is 1 - distance/max(len) over runes.
type LevenshteinRatio struct{}

func (LevenshteinRatio) Score(candidate, reference string) float64 {
	longest := max(utf8.RuneCountInString(candidate), utf8.RuneCountInString(reference))
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(candidate, reference)
	return 1 - float64(distance)/float64(longest)
}

// SimilarityByName returns the strategy registered under name, defaulting to DiffRatio.
func SimilarityByName(name string) (Similarity, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "difflib", "diff":
		return DiffRatio{}, true
	case "levenshtein":
		return LevenshteinRatio{}, true
	default:
		return DiffRatio{}, false
	}
}
