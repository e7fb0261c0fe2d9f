// Package splitter breaks a department's six-heading reply document into the
// three reply topics and derives structured atoms from each block. Atoms come
// from the list items of a block, or its paragraphs when it has no list.
package splitter

import (
	"regexp"
	"strings"

	"onereply/api/internal/atoms"
)

const (
	HeadingUnderstanding = "Our understanding"
	HeadingPropertyFacts = "Property facts"
	HeadingCitations     = "Relevant code citations"
	HeadingGuidance      = "Guidance"
	HeadingFollowups     = "Follow-up questions"
	HeadingNextSteps     = "Next steps"
)

// Headings are the recognised block headings in canonical document order.
var Headings = []string{
	HeadingUnderstanding,
	HeadingPropertyFacts,
	HeadingCitations,
	HeadingGuidance,
	HeadingFollowups,
	HeadingNextSteps,
}

// DefaultCitationCode is assumed when a citation item carries no bracketed
// code reference.
const DefaultCitationCode = "LUC"

const minHeadingsForWellFormed = 3

var (
	headingPattern  = regexp.MustCompile(`(?is)<h3(?:\s[^>]*)?>(.*?)</h3\s*>`)
	nextH3Pattern   = regexp.MustCompile(`(?i)<h3[\s>]`)
	citationPattern = regexp.MustCompile(`\[([A-Z][A-Z0-9]*)\s+(\d[\d.]*)\]`)
	citationStrip   = regexp.MustCompile(`\[[A-Z][A-Z0-9]*\s+\d[\d.]*\]\s*[-–:]?\s*`)
)

// Part is one topic extracted from a department document.
type Part struct {
	TopicKey atoms.TopicKey   `json:"sectionKey"`
	Title    string           `json:"title"`
	Content  string           `json:"content"`
	Atoms    atoms.DraftAtoms `json:"atoms"`
}

// blocks maps canonical heading to the raw HTML between that heading and the
// next <h3> (or the end of the document). Only the first occurrence of a
// heading is kept.
func blocks(doc string) map[string]string {
	found := make(map[string]string)
	matches := headingPattern.FindAllStringSubmatchIndex(doc, -1)
	for _, m := range matches {
		heading, ok := canonicalHeading(PlainText(doc[m[2]:m[3]]))
		if !ok {
			continue
		}
		if _, seen := found[heading]; seen {
			continue
		}
		rest := doc[m[1]:]
		end := len(rest)
		if loc := nextH3Pattern.FindStringIndex(rest); loc != nil {
			end = loc[0]
		}
		found[heading] = strings.TrimSpace(rest[:end])
	}
	return found
}

func canonicalHeading(text string) (string, bool) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ":"))
	for _, heading := range Headings {
		if strings.EqualFold(text, heading) {
			return heading, true
		}
	}
	return "", false
}

// IsWellFormed reports whether at least three of the six recognised headings
// appear as <h3> elements, ignoring case and attributes.
func IsWellFormed(doc string) bool {
	if strings.TrimSpace(doc) == "" {
		return false
	}
	return len(blocks(doc)) >= minHeadingsForWellFormed
}

type topicLayout struct {
	topic    atoms.TopicKey
	headings []string
	extract  func(found map[string]string, department string) atoms.DraftAtoms
}

var layouts = []topicLayout{
	{topic: atoms.TopicSituation, headings: []string{HeadingUnderstanding, HeadingPropertyFacts}, extract: situationAtoms},
	{topic: atoms.TopicGuidance, headings: []string{HeadingCitations, HeadingGuidance}, extract: guidanceAtoms},
	{topic: atoms.TopicNextSteps, headings: []string{HeadingFollowups, HeadingNextSteps}, extract: nextStepsAtoms},
}

// Split turns a department document into at most three parts, one per topic,
// in situation, guidance, next steps order. A topic with no non-empty block is
// omitted. A document that is not well formed, or whose recognised blocks are
// all empty, comes back as a single situation part carrying the raw document
// and empty atoms. Facts and citations are attributed to department.
func Split(doc, department string) []Part {
	if !IsWellFormed(doc) {
		return fallback(doc)
	}

	found := blocks(doc)
	parts := make([]Part, 0, len(layouts))
	for _, layout := range layouts {
		pieces := make([]string, 0, len(layout.headings))
		for _, heading := range layout.headings {
			if block := found[heading]; block != "" {
				pieces = append(pieces, "<h3>"+heading+"</h3>"+block)
			}
		}
		if len(pieces) == 0 {
			continue
		}
		parts = append(parts, Part{
			TopicKey: layout.topic,
			Title:    layout.topic.Title(),
			Content:  strings.Join(pieces, "\n"),
			Atoms:    layout.extract(found, department),
		})
	}
	if len(parts) == 0 {
		return fallback(doc)
	}
	return parts
}

func fallback(doc string) []Part {
	return []Part{{
		TopicKey: atoms.TopicSituation,
		Title:    atoms.TopicSituation.Title(),
		Content:  doc,
		Atoms:    atoms.Empty(),
	}}
}

func situationAtoms(found map[string]string, department string) atoms.DraftAtoms {
	out := atoms.Empty()
	out.Situation.Understanding = Items(found[HeadingUnderstanding])
	for _, item := range Items(found[HeadingPropertyFacts]) {
		out.Situation.PropertyFacts = append(out.Situation.PropertyFacts, parseFact(item, department))
	}
	return out
}

func guidanceAtoms(found map[string]string, department string) atoms.DraftAtoms {
	out := atoms.Empty()
	out.Guidance.Recommendations = Items(found[HeadingGuidance])
	for _, item := range Items(found[HeadingCitations]) {
		out.Guidance.Citations = append(out.Guidance.Citations, parseCitation(item, department))
	}
	return out
}

func nextStepsAtoms(found map[string]string, _ string) atoms.DraftAtoms {
	out := atoms.Empty()
	out.NextSteps.Followups = Items(found[HeadingFollowups])
	out.NextSteps.Actions = Items(found[HeadingNextSteps])
	return out
}

// parseFact splits on the first colon; an item without one becomes a key with
// an empty value.
func parseFact(item, source string) atoms.PropertyFact {
	key, value, ok := strings.Cut(item, ":")
	if !ok {
		return atoms.PropertyFact{Key: strings.TrimSpace(item), Source: source}
	}
	return atoms.PropertyFact{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value), Source: source}
}

func parseCitation(item, source string) atoms.Citation {
	citation := atoms.Citation{Code: DefaultCitationCode, Source: source}
	if m := citationPattern.FindStringSubmatch(item); m != nil {
		citation.Code = m[1]
		citation.Section = strings.TrimRight(m[2], ".")
		item = citationStrip.ReplaceAllString(item, "")
	}
	citation.Description = strings.TrimSpace(item)
	return citation
}
