package live

import (
	"context"
	"fmt"

	"github.com/vango-dev/domwire/pkg/dom"
	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/session"
)

// Event is everything Dispatch needs to run one handler.
type Event struct {
	Message *protocol.EventMessage
	Channel Channel
	UID     string
	Vars    *session.Vars
}

// Dispatch runs the handler named by the event against a page built from
// the document the event carried. It reports whether a handler was found;
// a missing handler is not an error.
//
// The page is detached when the handler returns, so elements kept past the
// event stop reaching the browser. Panics in the handler are not recovered
// here.
func (a *App) Dispatch(ctx context.Context, ev Event) (bool, error) {
	msg := ev.Message
	h, route, ok := a.Lookup(msg.URL, msg.Func)
	if !ok {
		a.logger.Debug("no handler", "func", msg.Func, "url", msg.URL)
		return false, nil
	}

	doc, err := dom.Parse(msg.HTML)
	if err != nil {
		return true, fmt.Errorf("live: parse document for %s: %w", msg.Func, err)
	}
	p := &Page{
		doc:   doc,
		url:   msg.URL,
		ctx:   ctx,
		ch:    ev.Channel,
		app:   a,
		route: route,
		uid:   ev.UID,
		vars:  ev.Vars,
	}
	defer p.detach()

	args := resolveArgs(p, msg.Args, msg.SelectorToElement)
	return true, h(p, args)
}
