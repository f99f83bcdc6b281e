package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is a single element of a fetched or rendered page.
type Node struct {
	sel  *goquery.Selection
	base *url.URL
}

// Document is a parsed page together with the URL it was loaded from.
type Document struct {
	URL  string
	root Node
}

// ParseDocument parses HTML from r. pageURL is used to resolve relative links.
func ParseDocument(r io.Reader, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	return &Document{
		URL:  pageURL,
		root: Node{sel: doc.Selection, base: base},
	}, nil
}

// Find returns every element matching selector.
func (d *Document) Find(selector string) []Node {
	return d.root.Find(selector)
}

// First returns the first element matching selector.
func (d *Document) First(selector string) (Node, bool) {
	return d.root.First(selector)
}

// Find returns descendants matching selector in document order.
func (n Node) Find(selector string) []Node {
	if n.sel == nil {
		return nil
	}
	found := n.sel.Find(selector)
	out := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Node{sel: s, base: n.base})
	})
	return out
}

// First returns the first descendant matching selector.
func (n Node) First(selector string) (Node, bool) {
	if n.sel == nil {
		return Node{}, false
	}
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return Node{}, false
	}
	return Node{sel: found, base: n.base}, true
}

// Has reports whether any descendant matches selector.
func (n Node) Has(selector string) bool {
	_, ok := n.First(selector)
	return ok
}

// Attr returns the named attribute.
func (n Node) Attr(name string) (string, bool) {
	if n.sel == nil {
		return "", false
	}
	return n.sel.Attr(name)
}

// Text returns the combined text of the node and all of its descendants.
func (n Node) Text() string {
	if n.sel == nil {
		return ""
	}
	return n.sel.Text()
}

// OwnText returns only the node's direct text children, skipping text that
// belongs to nested elements.
func (n Node) OwnText() string {
	if n.sel == nil {
		return ""
	}
	var b strings.Builder
	n.sel.First().Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			b.WriteString(s.Text())
		}
	})
	return b.String()
}

// AbsoluteURL resolves ref against the page the node was parsed from.
func (n Node) AbsoluteURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if n.base == nil || ref == "" {
		return ref
	}
	u, err := n.base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
