// Package normalize turns whatever a drafting source hands back (JSON
// envelopes, fenced code blocks, finished HTML or plain prose) into HTML that
// uses the six reply headings.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"onereply/api/internal/splitter"
)

const (
	shortTextLimit = 200
	maxUnwrapDepth = 3
)

var (
	bulletPrefix   = regexp.MustCompile(`^[-*•]\s+`)
	lineBreak      = regexp.MustCompile(`\r?\n`)
	sentenceBreak  = regexp.MustCompile(`[.!?]+`)
	embeddedObject = regexp.MustCompile(`\{[\s\S]*\}`)
	codeBlock      = regexp.MustCompile("```(?:html|json)?\\s*\\n?([\\s\\S]*?)\\n?\\s*```")
	quotedHTML     = regexp.MustCompile(`"html":\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)
	htmlObject     = regexp.MustCompile(`\{[\s\S]*"html"[\s\S]*\}`)
	looksLikeHTML  = regexp.MustCompile(`(?i)<h[1-6]|<p|<ul|<li`)
)

type headingKeywords struct {
	heading  string
	keywords []string
}

var sectionKeywords = []headingKeywords{
	{splitter.HeadingUnderstanding, []string{"understanding", "situation", "inquiry", "request"}},
	{splitter.HeadingPropertyFacts, []string{"property", "facts", "parcel", "address", "zoning"}},
	{splitter.HeadingCitations, []string{"code", "citation", "luc", "bcc", "regulation"}},
	{splitter.HeadingGuidance, []string{"guidance", "recommendation", "advice", "should", "must"}},
	{splitter.HeadingFollowups, []string{"question", "clarification", "need to know", "require"}},
	{splitter.HeadingNextSteps, []string{"next", "step", "action", "process", "submit", "apply"}},
}

// ToBulletedHTML renders lines of text. When at least half the lines already
// carry a bullet marker the markers are stripped and every line becomes a
// list item; otherwise a single line becomes a paragraph and several lines
// become a list.
func ToBulletedHTML(text string) string {
	lines := make([]string, 0)
	for _, line := range lineBreak.Split(text, -1) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	bulleted := 0
	for _, line := range lines {
		if bulletPrefix.MatchString(line) {
			bulleted++
		}
	}
	if bulleted >= (len(lines)+1)/2 {
		items := make([]string, 0, len(lines))
		for _, line := range lines {
			if clean := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, "")); clean != "" {
				items = append(items, "<li>"+html.EscapeString(clean)+"</li>")
			}
		}
		return "<ul>" + strings.Join(items, "\n") + "</ul>"
	}

	if len(lines) == 1 {
		return "<p>" + html.EscapeString(lines[0]) + "</p>"
	}
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		items = append(items, "<li>"+html.EscapeString(line)+"</li>")
	}
	return "<ul>" + strings.Join(items, "\n") + "</ul>"
}

// CoerceToSectioned distributes plain prose over the six headings. Short
// text lands under "Our understanding"; longer text is split into sentences
// and each sentence goes to the heading whose keywords it mentions most.
// Headings that receive nothing are kept with an empty block.
func CoerceToSectioned(raw string) string {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return ""
	}
	if len(clean) < shortTextLimit {
		return "<h3>" + splitter.HeadingUnderstanding + "</h3>" + ToBulletedHTML(clean)
	}

	sentences := make([]string, 0)
	for _, sentence := range sentenceBreak.Split(clean, -1) {
		if sentence = strings.TrimSpace(sentence); sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	if len(sentences) == 0 {
		return "<h3>" + splitter.HeadingUnderstanding + "</h3><p>" + html.EscapeString(clean) + "</p>"
	}

	buckets := make(map[string][]string)
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		best := splitter.HeadingUnderstanding
		bestScore := 0
		for _, section := range sectionKeywords {
			score := 0
			for _, keyword := range section.keywords {
				if strings.Contains(lower, keyword) {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				best = section.heading
			}
		}
		buckets[best] = append(buckets[best], sentence)
	}

	blocks := make([]string, 0, len(sectionKeywords))
	for _, section := range sectionKeywords {
		content := buckets[section.heading]
		body := ""
		switch {
		case len(content) == 1:
			body = "<p>" + html.EscapeString(content[0]) + "</p>"
		case len(content) > 1:
			body = ToBulletedHTML(strings.Join(content, "\n"))
		}
		blocks = append(blocks, "<h3>"+section.heading+"</h3>"+body)
	}
	return strings.Join(blocks, "\n\n")
}

// Content extracts reply HTML from raw drafting output. It accepts a JSON
// object with an "html" string or an "atoms" object, either bare or inside a
// fenced code block, HTML that is already formatted, and plain text, which is
// coerced into the sectioned layout.
func Content(raw string) string {
	return content(raw, 0)
}

func content(raw string, depth int) string {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return ""
	}
	if len(clean) >= 2 && strings.HasPrefix(clean, `"`) && strings.HasSuffix(clean, `"`) {
		clean = clean[1 : len(clean)-1]
	}

	if out, ok := fromJSON(clean); ok {
		return out
	}

	if depth < maxUnwrapDepth {
		if m := codeBlock.FindStringSubmatch(clean); m != nil {
			return content(m[1], depth+1)
		}
	}
	if m := quotedHTML.FindStringSubmatch(clean); m != nil {
		return unescapeJSONText(m[1])
	}
	if depth < maxUnwrapDepth {
		if m := htmlObject.FindString(clean); m != "" && m != clean {
			return content(m, depth+1)
		}
	}
	if looksLikeHTML.MatchString(clean) {
		return clean
	}
	return CoerceToSectioned(clean)
}

type envelope struct {
	HTML  *string        `json:"html"`
	Atoms *envelopeAtoms `json:"atoms"`
}

type envelopeAtoms struct {
	Understanding textList        `json:"understanding"`
	PropertyFacts json.RawMessage `json:"propertyFacts"`
	Guidance      textList        `json:"guidance"`
	Followups     textList        `json:"followups"`
	NextSteps     textList        `json:"nextsteps"`
}

// textList accepts either a JSON string or an array of strings.
type textList []string

func (t *textList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = textList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

func (t textList) text() string {
	return strings.Join(t, "\n")
}

func fromJSON(clean string) (string, bool) {
	var parsed envelope
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		match := embeddedObject.FindString(clean)
		if match == "" || json.Unmarshal([]byte(match), &parsed) != nil {
			return "", false
		}
	}

	if parsed.HTML != nil {
		return unescapeJSONText(*parsed.HTML), true
	}
	if parsed.Atoms == nil {
		return "", false
	}

	a := parsed.Atoms
	parts := make([]string, 0, 5)
	if text := a.Understanding.text(); text != "" {
		parts = append(parts, "<h3>"+splitter.HeadingUnderstanding+"</h3>"+ToBulletedHTML(text))
	}
	if facts := factsText(a.PropertyFacts); facts != "" {
		parts = append(parts, "<h3>"+splitter.HeadingPropertyFacts+"</h3>"+ToBulletedHTML(facts))
	}
	if text := a.Guidance.text(); text != "" {
		parts = append(parts, "<h3>"+splitter.HeadingGuidance+"</h3>"+ToBulletedHTML(text))
	}
	if text := a.Followups.text(); text != "" {
		parts = append(parts, "<h3>"+splitter.HeadingFollowups+"</h3>"+ToBulletedHTML(text))
	}
	if text := a.NextSteps.text(); text != "" {
		parts = append(parts, "<h3>"+splitter.HeadingNextSteps+"</h3>"+ToBulletedHTML(text))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

func factsText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var facts []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &facts); err != nil {
		return string(raw)
	}
	lines := make([]string, 0, len(facts))
	for _, fact := range facts {
		lines = append(lines, fact.Key+": "+fact.Value)
	}
	return strings.Join(lines, "\n")
}

var jsonEscapes = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t")

func unescapeJSONText(s string) string {
	return jsonEscapes.Replace(s)
}
