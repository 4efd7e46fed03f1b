// Package dom wraps a parsed HTML page (the rendered document a viewer works on)
// and the element helpers the overlay and selector deriver share.
package dom

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pagepick/backend/internal/model"
)

var generations atomic.Uint64

// Document is a loaded page. Its structure is fixed once parsed; only marker
// classes are added and removed afterwards.
type Document struct {
	sourceURL  string
	generation uint64
	doc        *goquery.Document
}

// Parse builds a Document from raw HTML. Blank input is rejected.
func Parse(sourceURL, src string) (*Document, error) {
	if strings.TrimSpace(src) == "" {
		return nil, model.ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{
		sourceURL:  sourceURL,
		generation: generations.Add(1),
		doc:        doc,
	}, nil
}

// SourceURL returns the URL the document was fetched from.
func (d *Document) SourceURL() string {
	return d.sourceURL
}

// Generation identifies this load. Every Parse call yields a new value.
func (d *Document) Generation() uint64 {
	return d.generation
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	if len(d.doc.Nodes) == 0 {
		return nil
	}
	return d.doc.Nodes[0]
}

// Element returns the root element (<html>).
func (d *Document) Element() *html.Node {
	for c := d.Root().FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Title returns the trimmed <title> text.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Contains reports whether n belongs to this document.
func (d *Document) Contains(n *html.Node) bool {
	root := d.Root()
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Query returns every element matching selector, in document order.
func (d *Document) Query(selector string) ([]*html.Node, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", model.ErrInvalidSelector, selector, err)
	}
	return cascadia.QueryAll(d.Root(), sel), nil
}

// QueryFirst returns the first element matching selector, or nil.
func (d *Document) QueryFirst(selector string) (*html.Node, error) {
	nodes, err := d.Query(selector)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Elements returns every element in document order.
func (d *Document) Elements() []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.Root())
	return out
}

// MarkedWith returns the elements currently carrying class.
func (d *Document) MarkedWith(class string) []*html.Node {
	var out []*html.Node
	for _, n := range d.Elements() {
		if HasClass(n, class) {
			out = append(out, n)
		}
	}
	return out
}

// ClearMarker removes class from every element.
func (d *Document) ClearMarker(class string) {
	for _, n := range d.Elements() {
		RemoveClass(n, class)
	}
}

// Render serializes the document, markers included.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root()); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	for _, n := range d.Elements() {
		if n.DataAtom == atom.Body {
			return n
		}
	}
	return nil
}
