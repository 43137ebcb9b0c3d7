package collect

import (
	"strings"

	"golang.org/x/net/html"
)

// DocumentParser is the document-parsing collaborator: it turns decoded
// markup into a query-capable document.
type DocumentParser interface {
	Parse(text string) (*html.Node, error)
}

// HTMLParser is the default parser over golang.org/x/net/html. It tolerates
// malformed markup the way browsers do.
type HTMLParser struct{}

func (HTMLParser) Parse(text string) (*html.Node, error) {
	return html.Parse(strings.NewReader(text))
}

// FindAll walks the document and collects every element with the given tag
// name.
func FindAll(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			found = append(found, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}

	return found
}

// Attr returns the value of the named attribute, or "" when absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

// Text concatenates the text content beneath a node, trimmed.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}

	return strings.TrimSpace(b.String())
}
