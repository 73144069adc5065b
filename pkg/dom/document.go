package dom

import (
	"errors"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrDetached is returned when a mutation needs a parent the element
	// does not have.
	ErrDetached = errors.New("dom: element has no parent")

	// ErrInvalidSelector is returned for a CSS selector that does not parse.
	ErrInvalidSelector = errors.New("dom: invalid selector")
)

// Document is a parsed HTML document.
type Document struct {
	root *html.Node
}

// Parse parses a complete HTML document. Missing html, head and body
// elements are created the way browsers create them.
func Parse(src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// String renders the document.
func (d *Document) String() string {
	return render(d.root)
}

// SetHTML replaces the whole document with src.
func (d *Document) SetHTML(src string) error {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return err
	}
	d.root = root
	return nil
}

// DocumentElement returns the root html element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return wrap(c)
		}
	}
	return nil
}

// Head returns the head element, or nil.
func (d *Document) Head() *Element {
	return d.firstByAtom(atom.Head)
}

// Body returns the body element, or nil.
func (d *Document) Body() *Element {
	return d.firstByAtom(atom.Body)
}

func (d *Document) firstByAtom(a atom.Atom) *Element {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return wrap(found)
}

// ElementByID returns the first element whose id is id, or nil.
func (d *Document) ElementByID(id string) *Element {
	return elementByID(d.root, id)
}

// Elements returns every element matching q in document order.
func (d *Document) Elements(q Query) []*Element {
	return elements(d.root, q)
}

// Select returns the elements matching a CSS selector in document order.
func (d *Document) Select(selector string) ([]*Element, error) {
	return selectAll(d.root, selector, false)
}

// SelectOne returns the first element matching a CSS selector, or nil.
func (d *Document) SelectOne(selector string) (*Element, error) {
	return selectFirst(d.root, selector, false)
}

func selectAll(n *html.Node, selector string, skipSelf bool) ([]*Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, errors.Join(ErrInvalidSelector, err)
	}
	var out []*Element
	for _, m := range sel.MatchAll(n) {
		if skipSelf && m == n {
			continue
		}
		out = append(out, wrap(m))
	}
	return out, nil
}

func selectFirst(n *html.Node, selector string, skipSelf bool) (*Element, error) {
	all, err := selectAll(n, selector, skipSelf)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func elementByID(root *html.Node, id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n != root && n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return wrap(found)
}

// walk visits n and its descendants depth first in document order until fn
// returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func render(n *html.Node) string {
	var sb strings.Builder
	// Rendering to a strings.Builder only fails on malformed trees, which
	// the parser never produces.
	_ = html.Render(&sb, n)
	return sb.String()
}
