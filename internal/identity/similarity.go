package identity

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two normalized names in [0,1]. Identical strings score
// 1.0 (the empty string included), an empty string against anything else
// scores 0, fully disjoint strings score near 0, and the function is
// symmetric. The score is the max of a whole-string edit ratio and a
// token-set ratio, so reordered tokens ("RYAN WEISS" vs "WEISS RYAN")
// still score high.
//
// Only the merger consults this; the resolver matches on exact keys.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	whole := editRatio(a, b)
	tokens := editRatio(tokenSetKey(a), tokenSetKey(b))
	if tokens > whole {
		return tokens
	}
	return whole
}

// editRatio converts levenshtein distance to a similarity in [0,1].
func editRatio(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// tokenSetKey renders the sorted unique tokens of a normalized name, so
// token order and duplicates do not affect the comparison.
func tokenSetKey(s string) string {
	fields := strings.Fields(s)
	seen := make(map[string]bool, len(fields))
	uniq := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			uniq = append(uniq, f)
		}
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}
