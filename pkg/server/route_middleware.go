package server

import "context"

// EventInfo describes the event being dispatched.
type EventInfo struct {
	ConnID string
	UID    string
	Func   string
	URL    string
}

// EventMiddleware wraps the dispatch of every event. Implementations call
// next to continue, usually with a context derived from ctx.
type EventMiddleware interface {
	Handle(ctx context.Context, ev EventInfo, next func(context.Context) error) error
}

// EventMiddlewareFunc adapts a function to EventMiddleware.
type EventMiddlewareFunc func(ctx context.Context, ev EventInfo, next func(context.Context) error) error

// Handle calls f.
func (f EventMiddlewareFunc) Handle(ctx context.Context, ev EventInfo, next func(context.Context) error) error {
	return f(ctx, ev, next)
}

// RunEventMiddleware executes a middleware chain and then calls final.
//
// Middleware can short-circuit by returning without calling next. In that
// case ranFinal will be false.
func RunEventMiddleware(ctx context.Context, ev EventInfo, middleware []EventMiddleware, final func(context.Context) error) (ranFinal bool, err error) {
	if final == nil {
		return false, nil
	}

	ran := false
	wrappedFinal := func(ctx context.Context) error {
		ran = true
		return final(ctx)
	}

	index := 0
	var next func(context.Context) error
	next = func(ctx context.Context) error {
		if index >= len(middleware) {
			return wrappedFinal(ctx)
		}

		mw := middleware[index]
		index++
		if mw == nil {
			return next(ctx)
		}

		return mw.Handle(ctx, ev, next)
	}

	err = next(ctx)
	return ran, err
}
