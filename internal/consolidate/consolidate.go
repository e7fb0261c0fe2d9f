// Package consolidate folds every approved department section of a ticket
// into one unified set of atoms and renders each topic as citizen-facing
// text.
//
// Clustering is order sensitive, so callers must pass sections in a stable
// order (the store lists them by ordering index, then creation time). Given
// the same ordered input, Consolidate and Render return identical output.
package consolidate

import (
	"fmt"
	"regexp"
	"strings"

	"onereply/api/internal/atoms"
	"onereply/api/internal/store"
)

// NameResolver turns a department key into its display name.
type NameResolver interface {
	Name(key string) string
}

// NameFunc adapts a plain function to NameResolver.
type NameFunc func(key string) string

func (f NameFunc) Name(key string) string { return f(key) }

type Consolidator struct {
	names  NameResolver
	policy Policy
}

type Option func(*Consolidator)

func WithPolicy(policy Policy) Option {
	return func(c *Consolidator) {
		c.policy = policy
	}
}

func New(names NameResolver, opts ...Option) *Consolidator {
	c := &Consolidator{names: names, policy: DefaultPolicy()}
	if c.names == nil {
		c.names = NameFunc(func(key string) string { return key })
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consolidator) Policy() Policy {
	return c.policy
}

var leadingNumber = regexp.MustCompile(`^\s*\d+[.)]\s*`)

// Consolidate merges the approved sections, grouped by topic key. Sections
// in any other status are ignored. Facts and citations are attributed to the contributing
// department's display name.
func (c *Consolidator) Consolidate(sections []store.Section) atoms.DraftAtoms {
	var (
		understanding   []string
		factLists       [][]atoms.PropertyFact
		recommendations []string
		citationLists   [][]atoms.Citation
		followups       []string
		actions         []string
	)

	for _, section := range sections {
		if section.Status != store.SectionApproved {
			continue
		}
		source := c.names.Name(section.Department)
		a := section.Atoms.Normalize()

		// Each section contributes only its own topic's group.
		switch section.TopicKey {
		case atoms.TopicSituation:
			understanding = append(understanding, nonBlank(a.Situation.Understanding)...)
			facts := make([]atoms.PropertyFact, 0, len(a.Situation.PropertyFacts))
			for _, fact := range a.Situation.PropertyFacts {
				fact.Source = source
				facts = append(facts, fact)
			}
			factLists = append(factLists, facts)
		case atoms.TopicGuidance:
			recommendations = append(recommendations, nonBlank(a.Guidance.Recommendations)...)
			citations := make([]atoms.Citation, 0, len(a.Guidance.Citations))
			for _, citation := range a.Guidance.Citations {
				citation.Source = source
				citations = append(citations, citation)
			}
			citationLists = append(citationLists, citations)
		case atoms.TopicNextSteps:
			followups = append(followups, nonBlank(a.NextSteps.Followups)...)
			for _, action := range a.NextSteps.Actions {
				if action = strings.TrimSpace(leadingNumber.ReplaceAllString(action, "")); action != "" {
					actions = append(actions, action)
				}
			}
		}
	}

	unified := atoms.Empty()
	unified.Situation.Understanding = c.policy.Understanding.reduce(understanding)
	for _, fact := range atoms.MergeFacts(factLists) {
		unified.Situation.PropertyFacts = append(unified.Situation.PropertyFacts, fact.Fact())
	}
	unified.Guidance.Recommendations = c.policy.Recommendations.reduce(recommendations)
	for _, citation := range atoms.MergeCitations(citationLists) {
		unified.Guidance.Citations = append(unified.Guidance.Citations, citation.Citation())
	}
	unified.NextSteps.Followups = c.policy.Followups.reduce(followups)
	for i, action := range c.policy.Actions.reduce(actions) {
		unified.NextSteps.Actions = append(unified.NextSteps.Actions, fmt.Sprintf("%d. %s", i+1, action))
	}
	return unified
}

// Render formats one topic of unified atoms as plain text. Unknown topics
// and topics with no content render as the empty string.
func Render(topic atoms.TopicKey, unified atoms.DraftAtoms) string {
	var blocks []string
	switch topic {
	case atoms.TopicSituation:
		if items := unified.Situation.Understanding; len(items) > 0 {
			blocks = append(blocks, "Understanding:\n"+strings.Join(items, "\n\n"))
		}
		if facts := unified.Situation.PropertyFacts; len(facts) > 0 {
			lines := make([]string, 0, len(facts))
			for _, fact := range facts {
				lines = append(lines, "• "+fact.Key+": "+fact.Value+attribution(fact.Source))
			}
			blocks = append(blocks, "Property Facts:\n"+strings.Join(lines, "\n"))
		}
	case atoms.TopicGuidance:
		if recs := unified.Guidance.Recommendations; len(recs) > 0 {
			blocks = append(blocks, "Recommendations:\n"+bullets(recs))
		}
		if citations := unified.Guidance.Citations; len(citations) > 0 {
			lines := make([]string, 0, len(citations))
			for _, citation := range citations {
				ref := strings.TrimSpace(citation.Code + " " + citation.Section)
				lines = append(lines, "• "+ref+" - "+citation.Description+attribution(citation.Source))
			}
			blocks = append(blocks, "Citations:\n"+strings.Join(lines, "\n"))
		}
	case atoms.TopicNextSteps:
		if followups := unified.NextSteps.Followups; len(followups) > 0 {
			blocks = append(blocks, "Follow-ups:\n"+bullets(followups))
		}
		if actions := unified.NextSteps.Actions; len(actions) > 0 {
			blocks = append(blocks, "Actions:\n"+strings.Join(actions, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// RenderAll renders every topic, keyed by topic.
func RenderAll(unified atoms.DraftAtoms) map[atoms.TopicKey]string {
	out := make(map[atoms.TopicKey]string, len(atoms.Topics))
	for _, topic := range atoms.Topics {
		out[topic] = Render(topic, unified)
	}
	return out
}

func attribution(source string) string {
	if source == "" {
		return ""
	}
	return " (" + source + ")"
}

func bullets(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "• "+item)
	}
	return strings.Join(lines, "\n")
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
