package server

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/domwire/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

// Serve runs the connection until the client goes away or ctx is cancelled.
// The read loop, event loop and heartbeat run as one group; when any of them
// stops, the connection is closed and the others follow. Handlers run with a
// context that is cancelled on close.
func (c *Connection) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(c.readLoop)
	g.Go(func() error { return c.eventLoop(gctx) })
	g.Go(func() error { return c.heartbeat(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.done:
		}
		c.Close()
		cancel()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop reads frames until the connection closes. Events are queued,
// replies are handed to their waiters, and nothing blocks on a handler.
func (c *Connection) readLoop() error {
	defer c.Close()

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.IsClosed() {
				return nil
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				c.metrics.RecordProtocolError()
				c.logger.Warn("frame too large", "limit", c.config.MaxMessageSize)
				return NewConnectionError(c.id, "read", protocol.ErrMessageTooLarge)
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
				return NewConnectionError(c.id, "read", err)
			}
			return nil
		}

		c.lastActive.Store(time.Now().UnixNano())
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.metrics.RecordBytesReceived(len(msg))
		c.handleFrame(msg)
	}
}

func (c *Connection) handleFrame(msg []byte) {
	if c.hooks.validate != nil && !c.hooks.validate(c, msg) {
		c.metrics.RecordRejectedFrame()
		c.logger.Warn("frame rejected", "bytes", len(msg))
		return
	}

	in, err := protocol.DecodeInbound(msg)
	if err != nil {
		c.metrics.RecordProtocolError()
		c.logger.Error("frame decode error", "error", err)
		return
	}

	switch {
	case in.Event != nil:
		c.metrics.RecordEventReceived()
		if err := c.enqueue(in.Event); err != nil {
			c.metrics.RecordEventDropped()
			c.logger.Warn("event dropped", "func", in.Event.Func, "error", err)
		}

	case in.Reply != nil:
		c.metrics.RecordReplyReceived()
		if err := c.deliver(in.Reply); err != nil {
			c.logger.Warn("reply dropped", "msg_num", in.Reply.MsgNum, "error", err)
		}
	}
}

// eventLoop runs queued events one at a time in arrival order.
func (c *Connection) eventLoop(ctx context.Context) error {
	for {
		ev := c.dequeue()
		if ev == nil {
			select {
			case <-c.eventSignal:
				continue
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			}
		}

		if c.hooks.dispatch != nil {
			c.hooks.dispatch(ctx, c, ev)
		}
		c.finishEvent()
	}
}

// heartbeat pings the client so idle connections keep their read deadline.
func (c *Connection) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if c.IsClosed() {
					return nil
				}
				c.metrics.RecordWriteError()
				return NewConnectionError(c.id, "ping", err)
			}

		case <-ctx.Done():
			return ctx.Err()

		case <-c.done:
			return nil
		}
	}
}
