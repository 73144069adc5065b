package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle to an element node. Handles are cheap; two handles
// to the same node are interchangeable.
type Element struct {
	n *html.Node
}

func wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	return &Element{n: n}
}

// NewElement creates a detached, empty element.
func NewElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
}

// ParseElement parses markup holding a single element and returns it
// detached. Text around the element is discarded.
func ParseElement(src string) (*Element, error) {
	nodes, err := html.ParseFragment(strings.NewReader(src), bodyContext())
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return wrap(n), nil
		}
	}
	return nil, fmt.Errorf("dom: no element in %q", src)
}

// Node exposes the underlying parse tree node.
func (e *Element) Node() *html.Node {
	return e.n
}

// Is reports whether e and other refer to the same node.
func (e *Element) Is(other *Element) bool {
	return e != nil && other != nil && e.n == other.n
}

// Tag returns the lowercase tag name.
func (e *Element) Tag() string {
	return strings.ToLower(e.n.Data)
}

// ID returns the id attribute, or "".
func (e *Element) ID() string {
	return attr(e.n, "id")
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	return lookupAttr(e.n, name)
}

// HasAttr reports whether the named attribute is present.
func (e *Element) HasAttr(name string) bool {
	_, ok := lookupAttr(e.n, name)
	return ok
}

// Attrs returns a copy of the element's attributes in source order.
func (e *Element) Attrs() []html.Attribute {
	return append([]html.Attribute(nil), e.n.Attr...)
}

// SetAttr sets or adds an attribute.
func (e *Element) SetAttr(name, value string) {
	name = strings.ToLower(name)
	for i := range e.n.Attr {
		if e.n.Attr[i].Namespace == "" && e.n.Attr[i].Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr removes an attribute and reports whether it was present.
func (e *Element) RemoveAttr(name string) bool {
	name = strings.ToLower(name)
	for i := range e.n.Attr {
		if e.n.Attr[i].Namespace == "" && e.n.Attr[i].Key == name {
			e.n.Attr = append(e.n.Attr[:i], e.n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

// Text returns the concatenated text content.
func (e *Element) Text() string {
	var sb strings.Builder
	walk(e.n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		return true
	})
	return sb.String()
}

// InnerHTML renders the element's children.
func (e *Element) InnerHTML() string {
	var sb strings.Builder
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// OuterHTML renders the element itself.
func (e *Element) OuterHTML() string {
	return render(e.n)
}

// SetInnerHTML replaces the element's children with the parsed src.
func (e *Element) SetInnerHTML(src string) error {
	nodes, err := html.ParseFragment(strings.NewReader(src), e.context())
	if err != nil {
		return err
	}
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	return nil
}

// AppendHTML appends the parsed src after the element's last child.
func (e *Element) AppendHTML(src string) error {
	nodes, err := html.ParseFragment(strings.NewReader(src), e.context())
	if err != nil {
		return err
	}
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	return nil
}

// AppendChild moves child under e as its last child.
func (e *Element) AppendChild(child *Element) {
	if child.n.Parent != nil {
		child.n.Parent.RemoveChild(child.n)
	}
	e.n.AppendChild(child.n)
}

// ReplaceWith replaces the element in its parent with the parsed src and
// returns the first element of the replacement, which may be nil when src
// holds only text.
func (e *Element) ReplaceWith(src string) (*Element, error) {
	parent := e.n.Parent
	if parent == nil {
		return nil, ErrDetached
	}
	ctx := parent
	if ctx.Type != html.ElementNode {
		ctx = bodyContext()
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, err
	}
	var first *html.Node
	for _, n := range nodes {
		parent.InsertBefore(n, e.n)
		if first == nil && n.Type == html.ElementNode {
			first = n
		}
	}
	parent.RemoveChild(e.n)
	return wrap(first), nil
}

// Parent returns the parent element, or nil at the root or when detached.
func (e *Element) Parent() *Element {
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return wrap(p)
}

// Children returns the child elements.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, wrap(c))
		}
	}
	return out
}

// ElementByID returns the first descendant whose id is id, or nil.
func (e *Element) ElementByID(id string) *Element {
	return elementByID(e.n, id)
}

// Elements returns the descendants matching q.
func (e *Element) Elements(q Query) []*Element {
	return elements(e.n, q)
}

// Select returns the descendants matching a CSS selector.
func (e *Element) Select(selector string) ([]*Element, error) {
	return selectAll(e.n, selector, true)
}

// SelectOne returns the first descendant matching a CSS selector, or nil.
func (e *Element) SelectOne(selector string) (*Element, error) {
	return selectFirst(e.n, selector, true)
}

// Selected returns the first descendant option carrying the selected
// attribute. Meaningful for select elements.
func (e *Element) Selected() *Element {
	var found *html.Node
	walk(e.n, func(n *html.Node) bool {
		if n != e.n && n.Type == html.ElementNode && n.DataAtom == atom.Option {
			if _, ok := lookupAttr(n, "selected"); ok {
				found = n
				return false
			}
		}
		return true
	})
	return wrap(found)
}

// String renders the element.
func (e *Element) String() string {
	return e.OuterHTML()
}

func (e *Element) context() *html.Node {
	if e.n.Type == html.ElementNode {
		return e.n
	}
	return bodyContext()
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	name = strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
