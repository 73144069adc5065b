// Package live connects handlers to the page a browser is showing.
//
// For every event the client runtime sends, Dispatch rebuilds the page from
// the serialized HTML, resolves element arguments and calls the handler
// registered under the event's name. The handler sees a *Page:
//
//	route.Handle("save", func(p *live.Page, args live.Args) error {
//	    btn := p.ElementByID("submit")
//	    return btn.SetAttr("disabled", "true")
//	})
//
// Each mutation on a live Page or Element is applied to the server copy and
// then sent to the browser as exactly one instruction, immediately and in
// call order. Reads never send anything. Pages built with NewPage are
// detached: mutations only change the server copy.
//
// A Page is owned by the handler invocation it was built for and is not
// safe for concurrent use. When the handler returns the page is detached.
package live
