package live

import (
	"encoding/json"
	"strings"

	"github.com/vango-dev/domwire/pkg/dom"
	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/upload"
)

// Element is an element of a Page. Mutations target the browser's element
// through the selector computed just before the change.
type Element struct {
	el   *dom.Element
	page *Page
}

// Model returns the underlying model element.
func (e *Element) Model() *dom.Element { return e.el }

// Page returns the page the element belongs to.
func (e *Element) Page() *Page { return e.page }

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return e.el.Tag() }

// ID returns the id attribute.
func (e *Element) ID() string { return e.el.ID() }

// Attr returns the value of an attribute.
func (e *Element) Attr(name string) (string, bool) { return e.el.Attr(name) }

// HasAttr reports whether an attribute is present.
func (e *Element) HasAttr(name string) bool { return e.el.HasAttr(name) }

// Text returns the text content.
func (e *Element) Text() string { return e.el.Text() }

// InnerHTML renders the element's content.
func (e *Element) InnerHTML() string { return e.el.InnerHTML() }

// OuterHTML renders the element.
func (e *Element) OuterHTML() string { return e.el.OuterHTML() }

func (e *Element) String() string { return e.el.OuterHTML() }

// UniqueSelector returns the selector that targets this element in the
// browser.
func (e *Element) UniqueSelector() string { return e.el.UniqueSelector() }

// Selector returns a tag-and-attributes selector.
func (e *Element) Selector() string { return e.el.Selector() }

// StyleProperty returns a property of the style attribute.
func (e *Element) StyleProperty(name string) (string, bool) { return e.el.StyleProperty(name) }

// Value returns the value attribute. The client runtime folds live form
// state into attributes before every event, so this is what the user typed.
func (e *Element) Value() string {
	v, _ := e.el.Attr("value")
	return v
}

// Checked reports whether a checkbox or radio input is checked.
func (e *Element) Checked() bool {
	return e.el.HasAttr("checked")
}

// Selected returns the selected option of a select element, or nil.
func (e *Element) Selected() *Element {
	return e.page.wrap(e.el.Selected())
}

// Parent returns the parent element, or nil at the root.
func (e *Element) Parent() *Element {
	return e.page.wrap(e.el.Parent())
}

// Children returns the child elements.
func (e *Element) Children() []*Element {
	return e.page.wrapAll(e.el.Children())
}

// ElementByID returns the descendant with the given id, or nil.
func (e *Element) ElementByID(id string) *Element {
	return e.page.wrap(e.el.ElementByID(id))
}

// Elements returns the descendants matching q.
func (e *Element) Elements(q dom.Query) []*Element {
	return e.page.wrapAll(e.el.Elements(q))
}

// Select returns the descendants matching a CSS selector.
func (e *Element) Select(selector string) ([]*Element, error) {
	els, err := e.el.Select(selector)
	if err != nil {
		return nil, err
	}
	return e.page.wrapAll(els), nil
}

// SetAttr sets an attribute.
func (e *Element) SetAttr(name, value string) error {
	sel := e.el.UniqueSelector()
	e.el.SetAttr(name, value)
	return e.page.send(protocol.SetAttr(sel, strings.ToLower(name), value))
}

// RemoveAttr removes an attribute.
func (e *Element) RemoveAttr(name string) error {
	sel := e.el.UniqueSelector()
	e.el.RemoveAttr(name)
	return e.page.send(protocol.DelAttr(sel, strings.ToLower(name)))
}

// SetID sets the id attribute.
func (e *Element) SetID(id string) error {
	return e.SetAttr("id", id)
}

// SetValue sets the value attribute; the browser updates the control too.
func (e *Element) SetValue(value string) error {
	return e.SetAttr("value", value)
}

// SetInnerHTML replaces the element's content.
func (e *Element) SetInnerHTML(html string) error {
	sel := e.el.UniqueSelector()
	if err := e.el.SetInnerHTML(html); err != nil {
		return err
	}
	return e.page.send(protocol.SetContent(sel, html))
}

// AppendHTML appends html to the element's content.
func (e *Element) AppendHTML(html string) error {
	sel := e.el.UniqueSelector()
	if err := e.el.AppendHTML(html); err != nil {
		return err
	}
	return e.page.send(protocol.AddContent(sel, html))
}

// ReplaceWith replaces the element with html. Afterwards e refers to the
// first element of the replacement.
func (e *Element) ReplaceWith(html string) error {
	sel := e.el.UniqueSelector()
	repl, err := e.el.ReplaceWith(html)
	if err != nil {
		return err
	}
	if repl != nil {
		e.el = repl
	}
	return e.page.send(protocol.ReplaceElement(sel, html))
}

// SetStyleProperty sets one property of the style attribute.
func (e *Element) SetStyleProperty(name, value string) error {
	return e.SetAttr("style", e.el.StyleAfterSet(name, value))
}

// This stands for the element itself in On arguments.
var This = jsThis{}

type jsThis struct{}

// On sets the on<event> attribute so that the browser calls the handler
// registered as name with args. Arguments are JSON encoded; This passes
// the element itself, which the handler receives resolved.
//
//	btn.On("click", "remove", live.This, 3)
func (e *Element) On(event, name string, args ...any) error {
	if !validHandlerName(name) {
		return ErrInvalidHandlerName
	}
	parts := make([]string, len(args))
	for i, a := range args {
		if _, ok := a.(jsThis); ok {
			parts[i] = "this"
			continue
		}
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		parts[i] = string(b)
	}
	return e.SetAttr("on"+strings.ToLower(event), name+"("+strings.Join(parts, ", ")+")")
}

// Files asks the browser for the files selected in this file input and
// blocks until it answers.
func (e *Element) Files(withContent bool) ([]*upload.File, error) {
	p := e.page
	if p.ch == nil {
		return nil, ErrNotLive
	}
	return upload.Request(p.ctx, p.ch, e.el.UniqueSelector(), withContent)
}
