package formatting

import (
	"sort"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
)

// CorrectCategories rebinds the top-level keys of a generation result to the
// canonical question categories. Keys that normalize to a canonical name bind
// first. The remaining categories are filled greedily from the remaining keys,
// always taking the highest-scoring (category, key) pair next; ties go to the
// earlier canonical category, then to the lexically smaller key. No key is
// used twice and there is no minimum score, so leftover keys still bind while
// categories remain. Categories with nothing left to bind are omitted.
func CorrectCategories[V any](result map[string]V, similarity Similarity) map[string]V {
	if similarity == nil {
		similarity = DiffRatio{}
	}

	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	corrected := make(map[string]V, len(domain.CanonicalCategories))
	used := make(map[string]bool, len(keys))
	bound := make(map[string]bool, len(domain.CanonicalCategories))

	for _, category := range domain.CanonicalCategories {
		for _, key := range keys {
			if !used[key] && normalizeKey(key) == category {
				corrected[category] = result[key]
				used[key] = true
				bound[category] = true
				break
			}
		}
	}

	for {
		bestScore := -1.0
		bestCategory, bestKey := "", ""
		for _, category := range domain.CanonicalCategories {
			if bound[category] {
				continue
			}
			for _, key := range keys {
				if used[key] {
					continue
				}
				if score := similarity.Score(normalizeKey(key), category); score > bestScore {
					bestScore, bestCategory, bestKey = score, category, key
				}
			}
		}
		if bestKey == "" {
			return corrected
		}
		corrected[bestCategory] = result[bestKey]
		used[bestKey] = true
		bound[bestCategory] = true
	}
}

func normalizeKey(key string) string {
	key = strings.NewReplacer("&", " ", "-", " ").Replace(strings.ToLower(key))
	return strings.Join(strings.Fields(key), "_")
}
