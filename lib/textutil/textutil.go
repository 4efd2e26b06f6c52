package textutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a name and strips all whitespace so that names can
// be compared regardless of how a site formats them.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	return whitespaceRegex.ReplaceAllString(name, "")
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return true
		}
	}
	return false
}

// Similarity is the Jaro-Winkler similarity of two names after normalization,
// in [0, 1].
func Similarity(a, b string) float64 {
	return matchr.JaroWinkler(NormalizeName(a), NormalizeName(b), false)
}

// RankBySimilarity sorts items in place by decreasing similarity of their
// name to pattern. Ties keep their original order.
func RankBySimilarity[T any](items []T, pattern string, name func(T) string) {
	if pattern == "" {
		return
	}
	scores := make(map[int]float64, len(items))
	indexed := make([]int, len(items))
	for i, item := range items {
		indexed[i] = i
		scores[i] = Similarity(name(item), pattern)
	}
	sort.SliceStable(indexed, func(a, b int) bool {
		return scores[indexed[a]] > scores[indexed[b]]
	})
	sorted := make([]T, len(items))
	for i, idx := range indexed {
		sorted[i] = items[idx]
	}
	copy(items, sorted)
}
