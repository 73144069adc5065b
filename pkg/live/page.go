package live

import (
	"context"

	"github.com/vango-dev/domwire/pkg/dom"
	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/session"
	"github.com/vango-dev/domwire/pkg/upload"
)

// Channel is the part of a connection a live page uses: Send for plain
// instructions, Call and Stream for instructions that expect replies.
type Channel interface {
	Send(ctx context.Context, inst protocol.Instruction) error
	upload.Transport
}

// Page is the server copy of the document a browser is showing.
type Page struct {
	doc *dom.Document
	url string

	ctx   context.Context
	ch    Channel // nil once detached
	app   *App
	route *Route
	uid   string
	vars  *session.Vars
}

// NewPage parses html into a detached page. Mutations on it change only the
// server copy, which makes it useful for building markup.
func NewPage(html string) (*Page, error) {
	doc, err := dom.Parse(html)
	if err != nil {
		return nil, err
	}
	return &Page{doc: doc, ctx: context.Background()}, nil
}

// IsLive reports whether mutations are forwarded to a browser.
func (p *Page) IsLive() bool {
	return p.ch != nil
}

// Context returns the context of the current event. It is cancelled when
// the connection closes.
func (p *Page) Context() context.Context {
	return p.ctx
}

// URL returns the path the event was sent from.
func (p *Page) URL() string {
	return p.url
}

// UID returns the user id the event belongs to.
func (p *Page) UID() string {
	return p.uid
}

// Vars returns the variables of the current user. Detached pages have none
// and return nil.
func (p *Page) Vars() *session.Vars {
	return p.vars
}

// Document exposes the underlying model. Mutating it directly bypasses the
// browser; use the Page and Element methods instead.
func (p *Page) Document() *dom.Document {
	return p.doc
}

// HTML renders the page.
func (p *Page) HTML() string {
	return p.doc.String()
}

func (p *Page) wrap(el *dom.Element) *Element {
	if el == nil {
		return nil
	}
	return &Element{el: el, page: p}
}

func (p *Page) wrapAll(els []*dom.Element) []*Element {
	out := make([]*Element, len(els))
	for i, el := range els {
		out[i] = p.wrap(el)
	}
	return out
}

// ElementByID returns the element with the given id, or nil.
func (p *Page) ElementByID(id string) *Element {
	return p.wrap(p.doc.ElementByID(id))
}

// Elements returns the elements matching q.
func (p *Page) Elements(q dom.Query) []*Element {
	return p.wrapAll(p.doc.Elements(q))
}

// Select returns the elements matching a CSS selector.
func (p *Page) Select(selector string) ([]*Element, error) {
	els, err := p.doc.Select(selector)
	if err != nil {
		return nil, err
	}
	return p.wrapAll(els), nil
}

// SelectOne returns the first element matching a CSS selector, or nil.
func (p *Page) SelectOne(selector string) (*Element, error) {
	el, err := p.doc.SelectOne(selector)
	if err != nil {
		return nil, err
	}
	return p.wrap(el), nil
}

// Root returns the html element.
func (p *Page) Root() *Element {
	return p.wrap(p.doc.DocumentElement())
}

// Body returns the body element.
func (p *Page) Body() *Element {
	return p.wrap(p.doc.Body())
}

// send forwards inst when the page is live.
func (p *Page) send(inst protocol.Instruction) error {
	if p.ch == nil {
		return nil
	}
	return p.ch.Send(p.ctx, inst)
}

// SetDocument replaces the whole document.
func (p *Page) SetDocument(html string) error {
	if err := p.doc.SetHTML(html); err != nil {
		return err
	}
	return p.send(protocol.SetDoc(html))
}

// InjectScript runs source in the browser by appending a script element to
// the body. The server copy is left unchanged.
func (p *Page) InjectScript(source string) error {
	return p.send(protocol.AddScript(source))
}

// Navigate sends the browser to url, optionally in a new tab.
func (p *Page) Navigate(url string, newTab bool) error {
	if p.ch == nil {
		return ErrNotLive
	}
	return p.send(protocol.GoTo(url, newTab))
}

// Download sends the browser to the one-time download link of a file held
// by the server's upload store.
func (p *Page) Download(storedID string) error {
	return p.Navigate(upload.DownloadURL(storedID), false)
}

// ReplaceElements replaces each of els with the matching entry of html
// using a single instruction.
func (p *Page) ReplaceElements(els []*Element, html []string) error {
	selectors := make([]string, len(els))
	for i, el := range els {
		selectors[i] = el.UniqueSelector()
	}
	inst, err := protocol.ReplaceElements(selectors, html)
	if err != nil {
		return err
	}
	for i, el := range els {
		repl, err := el.el.ReplaceWith(html[i])
		if err != nil {
			return err
		}
		if repl != nil {
			el.el = repl
		}
	}
	return p.send(inst)
}

// ExposeFunction registers h under name for the current route and defines
// the matching stub in the browser, so markup added later can call it.
func (p *Page) ExposeFunction(name string, h Handler) error {
	if p.ch == nil || p.app == nil {
		return ErrNotLive
	}
	var err error
	if p.route != nil {
		err = p.route.Handle(name, h)
	} else {
		err = p.app.Handle(name, h)
	}
	if err != nil {
		return err
	}
	return p.send(protocol.AddScript(stub(name)))
}

// detach stops forwarding mutations and releases the connection.
func (p *Page) detach() {
	p.ch = nil
}
