// Package selector derives CSS selectors from elements of a rendered document.
//
// A derivation walks from the element up to, but excluding, the document's root
// element. An element with an id contributes "#id" and ends the walk. Any other
// element contributes its lowercase tag followed by its classes in DOM order,
// with the overlay's marker classes filtered out. Fragments are joined with the
// child combinator " > ".
package selector

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/pagepick/backend/internal/dom"
)

// Universal is returned when there is no element to describe.
const Universal = "*"

const combinator = " > "

// Deriver holds the positional policy. The zero value produces class paths
// without positional suffixes.
type Deriver struct {
	// Positional appends :nth-child(i) to every non-id fragment.
	Positional bool
}

// Derive uses the default policy.
func Derive(n *html.Node) string {
	return Deriver{}.Derive(n)
}

// Derive returns the selector for n. It never fails.
func (d Deriver) Derive(n *html.Node) string {
	for n != nil && n.Type != html.ElementNode {
		n = n.Parent
	}
	if n == nil {
		return Universal
	}

	var parts []string
	for el := n; el != nil; el = dom.ParentElement(el) {
		if el != n && isDocumentRoot(el) {
			break
		}
		if id := dom.ID(el); id != "" {
			parts = append(parts, "#"+Escape(id))
			break
		}
		parts = append(parts, d.fragment(el))
	}

	// parts were collected leaf first
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, combinator)
}

func (d Deriver) fragment(el *html.Node) string {
	var b strings.Builder
	b.WriteString(Escape(dom.Tag(el)))
	for _, c := range dom.Classes(el) {
		if dom.IsMarker(c) {
			continue
		}
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	if d.Positional && el.Parent != nil {
		b.WriteString(":nth-child(")
		b.WriteString(strconv.Itoa(dom.ChildIndex(el)))
		b.WriteByte(')')
	}
	return b.String()
}

// isDocumentRoot reports whether el is the top element directly under the document node.
func isDocumentRoot(el *html.Node) bool {
	return el.Parent != nil && el.Parent.Type == html.DocumentNode
}
