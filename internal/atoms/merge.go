package atoms

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MergedFact is a property fact reported by one or more sources.
type MergedFact struct {
	Key     string   `json:"key"`
	Value   string   `json:"value"`
	Sources []string `json:"sources"`
}

// MergedCitation is a code citation reported by one or more sources.
type MergedCitation struct {
	Code        string   `json:"code"`
	Section     string   `json:"section"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
}

const (
	factValueSeparator           = " / "
	citationDescriptionSeparator = "; "
	sourceSeparator              = ", "
)

// MergeFacts collapses facts whose keys match case-insensitively. Distinct
// values are joined with " / " in first-seen order, sources are kept as a
// distinct list, and the displayed key is the lowercased key with its first
// letter capitalised. Output order follows the first appearance of each key.
func MergeFacts(factLists [][]PropertyFact) []MergedFact {
	type accumulator struct {
		key     string
		values  orderedSet
		sources orderedSet
	}

	order := make([]string, 0)
	byKey := make(map[string]*accumulator)
	for _, facts := range factLists {
		for _, fact := range facts {
			normalized := strings.ToLower(strings.TrimSpace(fact.Key))
			acc, ok := byKey[normalized]
			if !ok {
				acc = &accumulator{key: capitalize(normalized)}
				byKey[normalized] = acc
				order = append(order, normalized)
			}
			acc.values.add(strings.TrimSpace(fact.Value))
			acc.sources.add(strings.TrimSpace(fact.Source))
		}
	}

	merged := make([]MergedFact, 0, len(order))
	for _, key := range order {
		acc := byKey[key]
		merged = append(merged, MergedFact{
			Key:     acc.key,
			Value:   strings.Join(acc.values.items, factValueSeparator),
			Sources: acc.sources.list(),
		})
	}
	return merged
}

// MergeCitations collapses citations that share code and section. Distinct
// descriptions are joined with "; " and sources are kept as a distinct list.
func MergeCitations(citationLists [][]Citation) []MergedCitation {
	type key struct{ code, section string }
	type accumulator struct {
		code, section string
		descriptions  orderedSet
		sources       orderedSet
	}

	order := make([]key, 0)
	byKey := make(map[key]*accumulator)
	for _, citations := range citationLists {
		for _, citation := range citations {
			k := key{code: strings.TrimSpace(citation.Code), section: strings.TrimSpace(citation.Section)}
			acc, ok := byKey[k]
			if !ok {
				acc = &accumulator{code: k.code, section: k.section}
				byKey[k] = acc
				order = append(order, k)
			}
			acc.descriptions.add(strings.TrimSpace(citation.Description))
			acc.sources.add(strings.TrimSpace(citation.Source))
		}
	}

	merged := make([]MergedCitation, 0, len(order))
	for _, k := range order {
		acc := byKey[k]
		merged = append(merged, MergedCitation{
			Code:        acc.code,
			Section:     acc.section,
			Description: strings.Join(acc.descriptions.items, citationDescriptionSeparator),
			Sources:     acc.sources.list(),
		})
	}
	return merged
}

// Fact flattens a merged record back into a single PropertyFact, listing its
// sources comma-separated.
func (m MergedFact) Fact() PropertyFact {
	return PropertyFact{Key: m.Key, Value: m.Value, Source: strings.Join(m.Sources, sourceSeparator)}
}

func (m MergedCitation) Citation() Citation {
	return Citation{
		Code:        m.Code,
		Section:     m.Section,
		Description: m.Description,
		Source:      strings.Join(m.Sources, sourceSeparator),
	}
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(value string) {
	if value == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[value]; ok {
		return
	}
	s.seen[value] = struct{}{}
	s.items = append(s.items, value)
}

func (s *orderedSet) list() []string {
	if s.items == nil {
		return []string{}
	}
	return append([]string(nil), s.items...)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
