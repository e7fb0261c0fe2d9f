// Package intake maps inbound citizen email into ticket input.
package intake

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const noSubject = "(No Subject)"

// Message is an inbound email as delivered by the mail connector.
type Message struct {
	ID                string    `json:"id"`
	InternetMessageID string    `json:"internetMessageId"`
	Subject           string    `json:"subject"`
	FromEmail         string    `json:"fromEmail"`
	FromName          string    `json:"fromName"`
	BodyHTML          string    `json:"bodyHtml"`
	Received          time.Time `json:"receivedDateTime"`
	WebLink           string    `json:"webLink"`
}

// Ticket is the ticket input derived from a message.
type Ticket struct {
	Subject   string
	Requester string
	Body      string
	MessageID string
}

func MapMessage(msg Message) Ticket {
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = noSubject
	}
	messageID := msg.InternetMessageID
	if messageID == "" {
		messageID = msg.ID
	}
	return Ticket{
		Subject:   subject,
		Requester: strings.TrimSpace(msg.FromEmail),
		Body:      StripHTML(msg.BodyHTML),
		MessageID: messageID,
	}
}

// IsAllowedSender reports whether email belongs to one of domains or a
// subdomain of one. An empty domain list allows everyone.
func IsAllowedSender(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	_, domain, ok := strings.Cut(email, "@")
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !ok || domain == "" {
		return false
	}
	for _, allowed := range domains {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

var (
	manyBlankLines = regexp.MustCompile(`\n\s*\n\s*\n`)
	runOfSpaces    = regexp.MustCompile(`[ \t]+`)
)

// StripHTML converts an HTML mail body to plain text. Block elements end a
// line and <br> becomes a newline; runs of blank lines collapse to one.
func StripHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return strings.TrimSpace(body)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return
			case atom.Br:
				b.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Li, atom.Tr:
				b.WriteByte('\n')
			}
		}
	}
	walk(doc)

	text := runOfSpaces.ReplaceAllString(b.String(), " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = manyBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Deduper remembers which messages were already turned into tickets.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Remember records id and reports whether it was new. Empty ids are never
// recorded and always count as new.
func (d *Deduper) Remember(id string) bool {
	if id == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}
