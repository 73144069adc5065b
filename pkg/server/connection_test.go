package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/domwire/pkg/protocol"
)

// wsPair returns both ends of a websocket: the server side wrapped in a
// Connection that is not serving, and the raw client side.
func wsPair(t *testing.T, config *ConnectionConfig) (*Connection, *websocket.Conn) {
	t.Helper()
	if config == nil {
		config = DefaultConnectionConfig()
	}
	config.fill()

	serverSide := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error=%v", err)
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error=%v", err)
	}
	t.Cleanup(func() { client.Close() })

	c := newConnection(<-serverSide, "conn-1", "user-1", config, connHooks{}, nil, nil)
	t.Cleanup(func() { c.Close() })
	return c, client
}

// readInstruction reads one instruction frame from the client side.
func readInstruction(t *testing.T, client *websocket.Conn) protocol.Instruction {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error=%v", err)
	}
	inst, err := protocol.DecodeInstruction(data)
	if err != nil {
		t.Fatalf("DecodeInstruction(%s) error=%v", data, err)
	}
	return inst
}

func filesReply(num uint64) *protocol.Reply {
	return &protocol.Reply{MsgNum: num, Kind: protocol.ReplyFiles, Data: json.RawMessage(`[]`)}
}

func TestCallReceivesReply(t *testing.T) {
	c, client := wsPair(t, nil)

	type result struct {
		reply *protocol.Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := c.Call(context.Background(), protocol.GetFiles("input#f", false))
		done <- result{r, err}
	}()

	inst := readInstruction(t, client)
	if inst.Op != protocol.OpGetFiles || inst.MsgNum != 1 {
		t.Fatalf("instruction = %+v, want _getFiles with msg-num 1", inst)
	}
	if err := c.deliver(filesReply(1)); err != nil {
		t.Fatalf("deliver() error=%v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Call() error=%v", res.err)
		}
		if res.reply.MsgNum != 1 || res.reply.Kind != protocol.ReplyFiles {
			t.Errorf("Call() reply = %+v", res.reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call() did not return")
	}
}

func TestReplyBufferedBeforeNumberIssued(t *testing.T) {
	c, client := wsPair(t, nil)

	// Arrives before the server asked for it.
	if err := c.deliver(filesReply(1)); err != nil {
		t.Fatalf("deliver() error=%v", err)
	}
	if got := c.metrics.Snapshot().RepliesBuffered; got != 1 {
		t.Fatalf("RepliesBuffered = %d, want 1", got)
	}

	reply, err := c.Call(context.Background(), protocol.GetFiles("input#f", false))
	if err != nil {
		t.Fatalf("Call() error=%v", err)
	}
	if reply.MsgNum != 1 {
		t.Errorf("reply.MsgNum = %d, want 1", reply.MsgNum)
	}
	if inst := readInstruction(t, client); inst.MsgNum != 1 {
		t.Errorf("instruction msg-num = %d, want 1", inst.MsgNum)
	}
	if c.buffered != 0 || len(c.pending) != 0 {
		t.Errorf("buffer not drained: buffered=%d pending=%d", c.buffered, len(c.pending))
	}
}

func TestReplyForFinishedNumberDiscarded(t *testing.T) {
	c, _ := wsPair(t, nil)

	c.deliver(filesReply(1))
	if _, err := c.Call(context.Background(), protocol.GetFiles("input#f", false)); err != nil {
		t.Fatalf("Call() error=%v", err)
	}

	// A duplicate for the finished number must not reach the next call.
	if err := c.deliver(filesReply(1)); err != nil {
		t.Fatalf("deliver() error=%v", err)
	}
	if got := c.metrics.Snapshot().RepliesDiscarded; got != 1 {
		t.Errorf("RepliesDiscarded = %d, want 1", got)
	}
	if len(c.pending) != 0 {
		t.Errorf("pending = %v, want empty", c.pending)
	}
}

func TestStreamYieldsUntilEnd(t *testing.T) {
	c, _ := wsPair(t, nil)

	for i, chunk := range []string{`"ab"`, `"cd"`, `""`} {
		c.deliver(&protocol.Reply{MsgNum: 1, Kind: protocol.ReplyChunk, Data: json.RawMessage(chunk), End: i == 2})
	}

	var got []string
	err := c.Stream(context.Background(), protocol.SaveFile("0", false), func(r *protocol.Reply) error {
		var s string
		if err := json.Unmarshal(r.Data, &s); err != nil {
			return err
		}
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error=%v", err)
	}
	if strings.Join(got, "|") != "ab|cd|" {
		t.Errorf("chunks = %q", got)
	}
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	c, _ := wsPair(t, nil)
	c.deliver(&protocol.Reply{MsgNum: 1, Kind: protocol.ReplyChunk, Data: json.RawMessage(`"x"`)})

	boom := errors.New("boom")
	err := c.Stream(context.Background(), protocol.SaveFile("0", false), func(*protocol.Reply) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Stream() error=%v, want boom", err)
	}
}

func TestCallFailsWhenConnectionCloses(t *testing.T) {
	c, client := wsPair(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), protocol.GetFiles("input#f", false))
		done <- err
	}()
	readInstruction(t, client)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("Call() error=%v, want ErrConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call() still blocked after Close()")
	}

	if _, err := c.Call(context.Background(), protocol.GetFiles("input#f", false)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Call() after close error=%v, want ErrConnectionClosed", err)
	}
}

func TestCallTimeout(t *testing.T) {
	config := DefaultConnectionConfig()
	config.CallTimeout = 50 * time.Millisecond
	c, _ := wsPair(t, config)

	_, err := c.Call(context.Background(), protocol.GetFiles("input#f", false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call() error=%v, want DeadlineExceeded", err)
	}
}

func TestSequenceNumbersMonotonic(t *testing.T) {
	c, client := wsPair(t, nil)

	for want := uint64(1); want <= 3; want++ {
		c.deliver(filesReply(want))
		if _, err := c.Call(context.Background(), protocol.GetFiles("input#f", false)); err != nil {
			t.Fatalf("Call() error=%v", err)
		}
		if inst := readInstruction(t, client); inst.MsgNum != want {
			t.Errorf("msg-num = %d, want %d", inst.MsgNum, want)
		}
	}
	if c.Sequence() != 3 {
		t.Errorf("Sequence() = %d, want 3", c.Sequence())
	}
}

func TestReplyBufferBounded(t *testing.T) {
	config := DefaultConnectionConfig()
	config.MaxBufferedReplies = 2
	c, _ := wsPair(t, config)

	for _, n := range []uint64{5, 6} {
		if err := c.deliver(filesReply(n)); err != nil {
			t.Fatalf("deliver(%d) error=%v", n, err)
		}
	}
	if err := c.deliver(filesReply(7)); !errors.Is(err, ErrReplyBufferFull) {
		t.Errorf("deliver(7) error=%v, want ErrReplyBufferFull", err)
	}
}

func TestSendAndCallCheckReplyExpectation(t *testing.T) {
	c, client := wsPair(t, nil)

	if err := c.Send(context.Background(), protocol.GetFiles("input#f", false)); err == nil {
		t.Error("Send(_getFiles) error=nil, want error")
	}
	if _, err := c.Call(context.Background(), protocol.SetDoc("")); !errors.Is(err, ErrNoReply) {
		t.Errorf("Call(_setDoc) error=%v, want ErrNoReply", err)
	}

	if err := c.Send(context.Background(), protocol.SetAttr("p", "class", "x")); err != nil {
		t.Fatalf("Send() error=%v", err)
	}
	if inst := readInstruction(t, client); inst.Op != protocol.OpSetAttr || inst.MsgNum != 0 {
		t.Errorf("instruction = %+v", inst)
	}
	if c.Sequence() != 0 {
		t.Errorf("Sequence() = %d after Send, want 0", c.Sequence())
	}
}

func TestEventQueueStates(t *testing.T) {
	config := DefaultConnectionConfig()
	config.MaxEventQueue = 2
	c, _ := wsPair(t, config)

	if c.State() != StateAwaitingEvent {
		t.Fatalf("State() = %v, want awaiting_event", c.State())
	}
	c.enqueue(&protocol.EventMessage{Func: "a"})
	c.enqueue(&protocol.EventMessage{Func: "b"})
	if err := c.enqueue(&protocol.EventMessage{Func: "c"}); !errors.Is(err, ErrEventQueueFull) {
		t.Errorf("enqueue() error=%v, want ErrEventQueueFull", err)
	}
	if c.State() != StateEventQueued {
		t.Errorf("State() = %v, want event_queued", c.State())
	}

	if ev := c.dequeue(); ev.Func != "a" {
		t.Errorf("dequeue() = %s, want a", ev.Func)
	}
	if c.State() != StateHandlerRunning {
		t.Errorf("State() = %v, want handler_running", c.State())
	}
	c.finishEvent()
	if c.State() != StateEventQueued {
		t.Errorf("State() = %v, want event_queued", c.State())
	}
	c.dequeue()
	c.finishEvent()
	if c.State() != StateAwaitingEvent || c.QueueLen() != 0 {
		t.Errorf("State() = %v QueueLen() = %d", c.State(), c.QueueLen())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateAwaitingEvent:  "awaiting_event",
		StateEventQueued:    "event_queued",
		StateHandlerRunning: "handler_running",
		State(42):           "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	config := DefaultConnectionConfig()
	config.MaxMessageSize = 64
	c, client := wsPair(t, config)

	done := make(chan error, 1)
	go func() { done <- c.readLoop() }()

	frame := `{"type":"page","func":"go","url":"/","html":"` + strings.Repeat("x", 200) + `"}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error=%v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrMessageTooLarge) {
			t.Fatalf("readLoop() error=%v, want ErrMessageTooLarge", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("readLoop did not stop")
	}
	if !c.IsClosed() {
		t.Error("connection still open")
	}
	if got := c.metrics.Snapshot().ProtocolErrors; got != 1 {
		t.Errorf("ProtocolErrors = %d, want 1", got)
	}
}
