package splitter

import (
	"regexp"
	"strings"

	"onereply/api/internal/atoms"
)

const (
	manualCodesMarker     = "Relevant Codes:"
	manualFollowupsMarker = "Follow-ups:"
	manualStepsMarker     = "Next Steps:"
	bullet                = "•"
)

var numberedStep = regexp.MustCompile(`\d+\.`)

// ParseManual derives atoms from plain-text content written for a single
// topic, as produced by hand or from a reply template.
//
// Situation: the first non-blank line is the understanding and every line
// containing a colon is a property fact. Guidance: lines before
// "Relevant Codes:" are recommendations and bulleted lines after it are
// citations written "CODE - description". Next steps: bulleted lines after
// "Follow-ups:" are follow-ups and numbered items after "Next Steps:" are
// actions.
func ParseManual(content string, topic atoms.TopicKey) atoms.DraftAtoms {
	out := atoms.Empty()
	switch topic {
	case atoms.TopicSituation:
		lines := nonBlankLines(content)
		if len(lines) == 0 {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				out.Situation.Understanding = []string{trimmed}
			}
			return out
		}
		out.Situation.Understanding = []string{lines[0]}
		for _, line := range lines {
			if !strings.Contains(line, ":") {
				continue
			}
			out.Situation.PropertyFacts = append(out.Situation.PropertyFacts, parseFact(line, ""))
		}

	case atoms.TopicGuidance:
		recommendations, codes, _ := strings.Cut(content, manualCodesMarker)
		out.Guidance.Recommendations = nonBlankLines(recommendations)
		for _, line := range bulletedLines(codes) {
			code, description, ok := strings.Cut(line, " - ")
			if !ok {
				out.Guidance.Citations = append(out.Guidance.Citations, atoms.Citation{Description: line})
				continue
			}
			out.Guidance.Citations = append(out.Guidance.Citations, atoms.Citation{
				Code:        strings.TrimSpace(code),
				Description: strings.TrimSpace(description),
			})
		}

	case atoms.TopicNextSteps:
		head, steps, _ := strings.Cut(content, manualStepsMarker)
		if _, followups, ok := strings.Cut(head, manualFollowupsMarker); ok {
			out.NextSteps.Followups = bulletedLines(followups)
		}
		for _, step := range numberedStep.Split(steps, -1) {
			if step = strings.TrimSpace(step); step != "" {
				out.NextSteps.Actions = append(out.NextSteps.Actions, step)
			}
		}
	}
	return out
}

func nonBlankLines(s string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func bulletedLines(s string) []string {
	lines := make([]string, 0)
	for _, line := range nonBlankLines(s) {
		if !strings.Contains(line, bullet) {
			continue
		}
		if line = strings.TrimSpace(strings.Replace(line, bullet, "", 1)); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
