package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pagepick/backend/internal/model"
)

// Marker classes applied by the overlay. They never appear in derived selectors.
const (
	HoverClass       = "pagepick-hover"
	SelectedClass    = "pagepick-selected"
	SelectableClass  = "pagepick-selectable"
	RemoteHoverClass = "pagepick-remote-hover"
)

var markerClasses = map[string]bool{
	HoverClass:       true,
	SelectedClass:    true,
	SelectableClass:  true,
	RemoteHoverClass: true,
}

// IsMarker reports whether class is one of the overlay's own marker classes.
func IsMarker(class string) bool {
	return markerClasses[class]
}

// IsElement reports whether n is a non-nil element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag returns the lowercase tag name.
func Tag(n *html.Node) string {
	return strings.ToLower(n.Data)
}

// Attr returns the value of key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrNames returns the attribute names present on n, in source order.
func AttrNames(n *html.Node) []string {
	out := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace == "" {
			out = append(out, a.Key)
		}
	}
	return out
}

// ID returns the id attribute exactly as written, or "" when it is missing
// or blank. Selectors compare ids verbatim, so surrounding spaces are kept.
func ID(n *html.Node) string {
	v, _ := Attr(n, "id")
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// Classes returns the class names in DOM order.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether n carries class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to n if missing.
func AddClass(n *html.Node, class string) {
	if !IsElement(n) || HasClass(n, class) {
		return
	}
	setClasses(n, append(Classes(n), class))
}

// RemoveClass drops class from n. The class attribute is removed when it becomes empty.
func RemoveClass(n *html.Node, class string) {
	if !IsElement(n) || !HasClass(n, class) {
		return
	}
	var kept []string
	for _, c := range Classes(n) {
		if c != class {
			kept = append(kept, c)
		}
	}
	setClasses(n, kept)
}

func setClasses(n *html.Node, classes []string) {
	for i, a := range n.Attr {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		if len(classes) == 0 {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
		n.Attr[i].Val = strings.Join(classes, " ")
		return
	}
	if len(classes) > 0 {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}
}

// ParentElement returns the closest element ancestor of n.
func ParentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// ChildIndex returns the 1-based position of n among its parent's element children.
func ChildIndex(n *html.Node) int {
	i := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			i++
		}
	}
	return i
}

// Text returns the element's visible text with whitespace collapsed.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if c.DataAtom == atom.Script || c.DataAtom == atom.Style || c.DataAtom == atom.Template {
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Classify maps an element to its closed media kind.
func Classify(n *html.Node) model.ElementKind {
	if !IsElement(n) {
		return model.ElementKindPlain
	}
	switch n.DataAtom {
	case atom.Img, atom.Picture:
		return model.ElementKindImage
	case atom.Video:
		return model.ElementKindVideo
	case atom.Audio:
		return model.ElementKindAudio
	}
	return model.ElementKindPlain
}

// interactive elements whose default action must not escape selection mode.
var interactive = map[atom.Atom]bool{
	atom.A:        true,
	atom.Area:     true,
	atom.Button:   true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Textarea: true,
	atom.Form:     true,
	atom.Label:    true,
	atom.Summary:  true,
	atom.Option:   true,
}

// InInteractive reports whether n or one of its ancestors is a link or form control.
func InInteractive(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && interactive[p.DataAtom] {
			return true
		}
	}
	return false
}
