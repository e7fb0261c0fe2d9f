package splitter

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Br: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.Tr: true, atom.Td: true, atom.Blockquote: true, atom.Section: true,
}

func parseFragment(fragment string) []*html.Node {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil
	}
	return nodes
}

// PlainText renders an HTML fragment as whitespace-collapsed text. Block
// elements are treated as word boundaries.
func PlainText(fragment string) string {
	var b strings.Builder
	for _, node := range parseFragment(fragment) {
		writeText(&b, node, false)
	}
	return collapse(b.String())
}

// ListItems returns the text of every <li> in the fragment, document order.
// Nested lists contribute their own items and are left out of the parent's
// text.
func ListItems(fragment string) []string {
	items := make([]string, 0)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Li {
			var b strings.Builder
			writeText(&b, n, true)
			if text := collapse(b.String()); text != "" {
				items = append(items, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range parseFragment(fragment) {
		walk(node)
	}
	return items
}

func writeText(b *strings.Builder, n *html.Node, skipNestedLists bool) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		if blockElements[n.DataAtom] {
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if skipNestedLists && c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			continue
		}
		writeText(b, c, skipNestedLists)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		b.WriteByte(' ')
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Items returns the list items of a fragment. A fragment without list items
// yields the text of each paragraph, and failing that its whole text as a
// single item.
func Items(fragment string) []string {
	if items := ListItems(fragment); len(items) > 0 {
		return items
	}
	paragraphs := make([]string, 0)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			var b strings.Builder
			writeText(&b, n, false)
			if text := collapse(b.String()); text != "" {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range parseFragment(fragment) {
		walk(node)
	}
	if len(paragraphs) > 0 {
		return paragraphs
	}
	if text := PlainText(fragment); text != "" {
		return []string{text}
	}
	return []string{}
}
