package export

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var numberedLine = regexp.MustCompile(`^\d+\.\s+`)

type listKind int

const (
	noList listKind = iota
	bulletList
	numberedList
)

// TopicToHTML converts a rendered reply topic into HTML. Lines ending with
// a colon become subheadings, "•" lines become bullet items and "N." lines
// become ordered items; everything else is a paragraph.
func TopicToHTML(text string) string {
	var b strings.Builder
	open := noList
	closeList := func() {
		switch open {
		case bulletList:
			b.WriteString("</ul>\n")
		case numberedList:
			b.WriteString("</ol>\n")
		}
		open = noList
	}
	openList := func(kind listKind) {
		if open == kind {
			return
		}
		closeList()
		if kind == bulletList {
			b.WriteString("<ul>\n")
		} else {
			b.WriteString("<ol>\n")
		}
		open = kind
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			closeList()
		case strings.HasPrefix(line, "•"):
			openList(bulletList)
			b.WriteString("<li>" + html.EscapeString(strings.TrimSpace(strings.TrimPrefix(line, "•"))) + "</li>\n")
		case numberedLine.MatchString(line):
			openList(numberedList)
			b.WriteString("<li>" + html.EscapeString(numberedLine.ReplaceAllString(line, "")) + "</li>\n")
		case strings.HasSuffix(line, ":") && !strings.Contains(strings.TrimSuffix(line, ":"), ":"):
			closeList()
			b.WriteString("<h4>" + html.EscapeString(strings.TrimSuffix(line, ":")) + "</h4>\n")
		default:
			closeList()
			b.WriteString("<p>" + html.EscapeString(line) + "</p>\n")
		}
	}
	closeList()
	return b.String()
}
