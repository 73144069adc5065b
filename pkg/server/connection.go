package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/domwire/pkg/protocol"
)

// State is what a connection is doing.
type State int32

const (
	// StateAwaitingEvent means no event is queued or running.
	StateAwaitingEvent State = iota
	// StateEventQueued means events are waiting and no handler runs.
	StateEventQueued
	// StateHandlerRunning means a handler is running, possibly blocked on
	// replies.
	StateHandlerRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingEvent:
		return "awaiting_event"
	case StateEventQueued:
		return "event_queued"
	case StateHandlerRunning:
		return "handler_running"
	default:
		return "unknown"
	}
}

// Connection is one browser window's websocket. Events are handled one at a
// time in arrival order; replies are matched to the instruction that asked
// for them by message number.
type Connection struct {
	id  string
	uid string

	ws     *websocket.Conn
	config *ConnectionConfig
	hooks  connHooks

	// Serializes writes
	mu sync.Mutex

	// Message numbers. Incremented under replyMu.
	seq atomic.Uint64

	replyMu  sync.Mutex
	waiters  map[uint64]*mailbox
	pending  map[uint64][]*protocol.Reply
	buffered int

	eventMu     sync.Mutex
	events      []*protocol.EventMessage
	eventSignal chan struct{}
	state       atomic.Int32

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	metrics *MetricsCollector
	logger  *slog.Logger

	CreatedAt  time.Time
	lastActive atomic.Int64
}

// connHooks connect a Connection to the server that owns it.
type connHooks struct {
	validate func(c *Connection, data []byte) bool
	dispatch func(ctx context.Context, c *Connection, ev *protocol.EventMessage)
	navigate func(rawURL string) (string, error)
}

// mailbox collects replies for one outstanding message number.
type mailbox struct {
	items  []*protocol.Reply // guarded by Connection.replyMu
	notify chan struct{}
}

func newConnection(ws *websocket.Conn, id, uid string, config *ConnectionConfig, hooks connHooks, metrics *MetricsCollector, logger *slog.Logger) *Connection {
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	now := time.Now()
	c := &Connection{
		id:          id,
		uid:         uid,
		ws:          ws,
		config:      config,
		hooks:       hooks,
		waiters:     make(map[uint64]*mailbox),
		pending:     make(map[uint64][]*protocol.Reply),
		eventSignal: make(chan struct{}, 1),
		done:        make(chan struct{}),
		metrics:     metrics,
		logger:      logger.With("conn_id", id),
		CreatedAt:   now,
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// UID returns the id of the user the connection belongs to.
func (c *Connection) UID() string { return c.uid }

// State returns what the connection is doing.
func (c *Connection) State() State { return State(c.state.Load()) }

// Sequence returns the last message number issued.
func (c *Connection) Sequence() uint64 { return c.seq.Load() }

// IsClosed reports whether the connection is closed.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.done }

// LastActive returns when the last frame arrived.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Close closes the connection. Waiting calls return ErrConnectionClosed.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.ws != nil {
			deadline := time.Now().Add(c.config.WriteTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.ws.Close()
		}
		c.logger.Debug("connection closed")
	})
	return nil
}

// Send writes an instruction that expects no reply.
func (c *Connection) Send(ctx context.Context, inst protocol.Instruction) error {
	if inst.Op.ExpectsReply() {
		return fmt.Errorf("server: %s needs Call or Stream", inst.Op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if inst.Op == protocol.OpGoTo && c.hooks.navigate != nil {
		target, err := c.hooks.navigate(inst.URL)
		if err != nil {
			return err
		}
		inst.URL = target
	}
	data, err := protocol.Encode(inst)
	if err != nil {
		return err
	}
	return c.write(data)
}

// Call writes inst with a fresh message number and waits for its reply.
func (c *Connection) Call(ctx context.Context, inst protocol.Instruction) (*protocol.Reply, error) {
	var out *protocol.Reply
	err := c.exchange(ctx, inst, func(r *protocol.Reply) (bool, error) {
		out = r
		return true, nil
	})
	return out, err
}

// Stream writes inst with a fresh message number and passes every reply
// carrying that number to fn until one has End set.
func (c *Connection) Stream(ctx context.Context, inst protocol.Instruction, fn func(*protocol.Reply) error) error {
	return c.exchange(ctx, inst, func(r *protocol.Reply) (bool, error) {
		if err := fn(r); err != nil {
			return true, err
		}
		return r.End, nil
	})
}

func (c *Connection) exchange(ctx context.Context, inst protocol.Instruction, fn func(*protocol.Reply) (bool, error)) error {
	if !inst.Op.ExpectsReply() {
		return fmt.Errorf("%w: %s", ErrNoReply, inst.Op)
	}
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	num, mb := c.register()
	defer c.unregister(num)

	inst.MsgNum = num
	data, err := protocol.Encode(inst)
	if err != nil {
		return err
	}
	if err := c.write(data); err != nil {
		return err
	}

	for {
		r, err := c.next(ctx, mb)
		if err != nil {
			return err
		}
		done, err := fn(r)
		if done {
			return err
		}
	}
}

// register issues the next message number. Replies that arrived before
// the number was issued are moved into its mailbox.
func (c *Connection) register() (uint64, *mailbox) {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()

	num := c.seq.Add(1)
	mb := &mailbox{notify: make(chan struct{}, 1)}
	if early := c.pending[num]; len(early) > 0 {
		mb.items = early
		c.buffered -= len(early)
		delete(c.pending, num)
		mb.notify <- struct{}{}
	}
	c.waiters[num] = mb
	return num, mb
}

func (c *Connection) unregister(num uint64) {
	c.replyMu.Lock()
	delete(c.waiters, num)
	c.replyMu.Unlock()
}

func (c *Connection) next(ctx context.Context, mb *mailbox) (*protocol.Reply, error) {
	for {
		c.replyMu.Lock()
		if len(mb.items) > 0 {
			r := mb.items[0]
			mb.items = mb.items[1:]
			c.replyMu.Unlock()
			return r, nil
		}
		c.replyMu.Unlock()

		select {
		case <-mb.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrConnectionClosed
		}
	}
}

// deliver routes a reply to its waiter, buffers it for a number not yet
// issued, or discards it when its number is already finished.
func (c *Connection) deliver(r *protocol.Reply) error {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()

	if mb, ok := c.waiters[r.MsgNum]; ok {
		mb.items = append(mb.items, r)
		select {
		case mb.notify <- struct{}{}:
		default:
		}
		return nil
	}

	if r.MsgNum == 0 || r.MsgNum <= c.seq.Load() {
		c.metrics.RecordReplyDiscarded()
		c.logger.Debug("reply discarded", "msg_num", r.MsgNum)
		return nil
	}

	if c.buffered >= c.config.MaxBufferedReplies {
		return ErrReplyBufferFull
	}
	c.pending[r.MsgNum] = append(c.pending[r.MsgNum], r)
	c.buffered++
	c.metrics.RecordReplyBuffered()
	return nil
}

// enqueue appends an event to the FIFO queue.
func (c *Connection) enqueue(ev *protocol.EventMessage) error {
	c.eventMu.Lock()
	if len(c.events) >= c.config.MaxEventQueue {
		c.eventMu.Unlock()
		return ErrEventQueueFull
	}
	c.events = append(c.events, ev)
	c.state.CompareAndSwap(int32(StateAwaitingEvent), int32(StateEventQueued))
	c.eventMu.Unlock()

	select {
	case c.eventSignal <- struct{}{}:
	default:
	}
	return nil
}

// dequeue pops the oldest event, or returns nil when none is queued.
func (c *Connection) dequeue() *protocol.EventMessage {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	ev := c.events[0]
	c.events[0] = nil
	c.events = c.events[1:]
	c.state.Store(int32(StateHandlerRunning))
	return ev
}

// finishEvent records that a handler returned.
func (c *Connection) finishEvent() {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if len(c.events) > 0 {
		c.state.Store(int32(StateEventQueued))
	} else {
		c.state.Store(int32(StateAwaitingEvent))
	}
}

// QueueLen returns the number of events waiting.
func (c *Connection) QueueLen() int {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	return len(c.events)
}

func (c *Connection) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.metrics.RecordWriteError()
		c.logger.Error("write error", "error", err)
		c.Close()
		return NewConnectionError(c.id, "write", err)
	}
	c.metrics.RecordInstructionSent(len(data))
	return nil
}
