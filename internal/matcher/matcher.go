// =============================================================================
// ASYCUDA Export - Text Matcher
// =============================================================================
//
// The matcher scores a free-text product description against every catalog
// entry and returns the candidates that reach a threshold, best first.
//
// SCORING:
//   Both sides are normalised with textnorm.Normalize. Two similarity
//   measures are computed on a 0-100 scale and the higher one wins:
//     - token-set ratio : tolerant of word reordering and extra words
//     - edit ratio      : tolerant of typos ("Braclet" vs "Bracelet")
//
// ORDERING:
//   1. higher score
//   2. shorter catalog key
//   3. catalog insertion order
//
// The matcher keeps no state. It is safe to call concurrently.
//
// =============================================================================

package matcher

import (
	"sort"
	"strings"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/textnorm"
)

// MatchResult is one scored catalog candidate.
type MatchResult struct {
	HSCode string `json:"hs_code"`

	// Key is the catalog key as written in the reference data.
	Key string `json:"key"`

	// Score is the similarity on a 0-100 scale.
	Score int `json:"score"`

	// Index is the catalog insertion position of the entry.
	Index int `json:"-"`

	normKey string
}

// Match returns every catalog entry scoring at least threshold against
// query, best first. It returns an empty slice when nothing qualifies.
func Match(query string, c *catalog.Catalog, threshold int) []MatchResult {
	q := textnorm.Normalize(query)
	if q == "" || c == nil {
		return nil
	}
	qTokens := strings.Fields(q)

	var results []MatchResult
	for i := 0; i < c.Len(); i++ {
		entry := c.Entry(i)
		score := Score(q, qTokens, entry.NormKey())
		if score < threshold {
			continue
		}
		results = append(results, MatchResult{
			HSCode:  entry.HSCode,
			Key:     entry.Key,
			Score:   score,
			Index:   i,
			normKey: entry.NormKey(),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.normKey) != len(b.normKey) {
			return len(a.normKey) < len(b.normKey)
		}
		return a.Index < b.Index
	})
	return results
}

// Best returns the top candidate for query, if any reaches threshold.
func Best(query string, c *catalog.Catalog, threshold int) (MatchResult, bool) {
	results := Match(query, c, threshold)
	if len(results) == 0 {
		return MatchResult{}, false
	}
	return results[0], true
}

// MatchKeyword classifies query by the catalog keyword rules, longest rule
// first. It is a fallback for descriptions that no catalog key resembles and
// always reports a score of 0 so callers can tell it apart from a fuzzy hit.
func MatchKeyword(query string, c *catalog.Catalog) (MatchResult, bool) {
	if c == nil {
		return MatchResult{}, false
	}
	hs, keyword, ok := c.Keyword(query)
	if !ok {
		return MatchResult{}, false
	}
	return MatchResult{HSCode: hs, Key: keyword, Index: -1}, true
}

// Score compares a normalised query with a normalised key and returns the
// higher of the token-set and edit ratios.
func Score(query string, queryTokens []string, key string) int {
	if query == key {
		return 100
	}
	keyTokens := strings.Fields(key)
	return max(TokenSetRatio(queryTokens, keyTokens), Ratio(query, key))
}

// =============================================================================
// SIMILARITY MEASURES
// =============================================================================

// Ratio returns the edit-distance similarity of a and b on a 0-100 scale:
// 100 * (1 - distance / longer length), rounded to the nearest integer.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 100
	}
	distance := levenshtein(ra, rb)
	return (200*(longest-distance) + longest) / (2 * longest)
}

// TokenSetRatio compares the token sets of a and b. Tokens common to both
// sides are sorted and used as a shared prefix, so word order and tokens
// present on one side only weigh less than in a plain edit ratio.
func TokenSetRatio(a, b []string) int {
	setA, setB := toSet(a), toSet(b)

	var common, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(withA, withB)
	if base != "" {
		best = max(best, Ratio(base, withA), Ratio(base, withB))
	}
	return best
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// levenshtein returns the edit distance between a and b using two rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
