// Package similarity scores short statements against each other and clusters
// near-duplicates so that overlapping department wording can be collapsed.
package similarity

import (
	"strings"
	"unicode"
)

// Tokens lowercases s, drops everything that is not a letter, digit,
// underscore or whitespace, and splits on whitespace. Empty tokens are never
// returned.
func Tokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Fields(cleaned)
}

func tokenSet(s string) map[string]struct{} {
	tokens := Tokens(s)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard index of the token sets of a and b. Two strings
// with no tokens between them score 0.
func Similarity(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

// Group partitions items into clusters. Items are visited in input order; an
// unassigned item seeds a new cluster and pulls in every later unassigned item
// whose similarity to the seed is strictly greater than threshold. Membership
// is never compared against anything but the seed, so clusters are not
// transitive closures.
//
// Every input index lands in exactly one cluster, and each cluster keeps input
// order with the seed first.
func Group(items []string, threshold float64) [][]string {
	indices := GroupIndices(items, threshold)
	groups := make([][]string, 0, len(indices))
	for _, members := range indices {
		group := make([]string, 0, len(members))
		for _, idx := range members {
			group = append(group, items[idx])
		}
		groups = append(groups, group)
	}
	return groups
}

// GroupIndices is Group reporting input positions instead of values.
func GroupIndices(items []string, threshold float64) [][]int {
	sets := make([]map[string]struct{}, len(items))
	for i, item := range items {
		sets[i] = tokenSet(item)
	}

	assigned := make([]bool, len(items))
	groups := make([][]int, 0)
	for i := range items {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []int{i}
		for j := i + 1; j < len(items); j++ {
			if assigned[j] {
				continue
			}
			if jaccard(sets[i], sets[j]) > threshold {
				assigned[j] = true
				group = append(group, j)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func jaccard(left, right map[string]struct{}) float64 {
	intersection := 0
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
