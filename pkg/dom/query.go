package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Query filters elements by tag, class, name and attributes. Empty fields
// match everything.
type Query struct {
	Tag   string
	Class string
	Name  string
	Attrs map[string]string
}

func (q Query) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if q.Tag != "" && !strings.EqualFold(n.Data, q.Tag) {
		return false
	}
	if q.Class != "" && !hasClass(n, q.Class) {
		return false
	}
	if q.Name != "" && attr(n, "name") != q.Name {
		return false
	}
	for k, v := range q.Attrs {
		got, ok := lookupAttr(n, k)
		if !ok || got != v {
			return false
		}
	}
	return true
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// elements returns the descendants of root matching q, excluding root.
func elements(root *html.Node, q Query) []*Element {
	var out []*Element
	walk(root, func(n *html.Node) bool {
		if n != root && q.matches(n) {
			out = append(out, wrap(n))
		}
		return true
	})
	return out
}
