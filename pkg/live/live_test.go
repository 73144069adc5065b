package live

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/session"
)

// recorder is a Channel that records instructions and answers file requests.
type recorder struct {
	sent  []protocol.Instruction
	files []protocol.FileDescriptor
	num   uint64
}

func (r *recorder) Send(_ context.Context, inst protocol.Instruction) error {
	r.sent = append(r.sent, inst)
	return nil
}

func (r *recorder) Call(_ context.Context, inst protocol.Instruction) (*protocol.Reply, error) {
	r.num++
	inst.MsgNum = r.num
	r.sent = append(r.sent, inst)
	data, err := json.Marshal(r.files)
	if err != nil {
		return nil, err
	}
	return &protocol.Reply{MsgNum: inst.MsgNum, Kind: protocol.ReplyFiles, Data: data}, nil
}

func (r *recorder) Stream(context.Context, protocol.Instruction, func(*protocol.Reply) error) error {
	return errors.New("not implemented")
}

const formPage = `<html><head></head><body><div id="box"><p>one</p><p>two</p></div><button id="submit">Go</button></body></html>`

func elementArg(selector string) json.RawMessage {
	b, _ := json.Marshal(protocol.ElementRef{Type: protocol.ElementRefType, Selector: selector})
	return b
}

func newTestApp(t *testing.T) (*App, *Route) {
	t.Helper()
	app := NewApp()
	route, err := app.AddPage("/", formPage)
	if err != nil {
		t.Fatalf("AddPage() error=%v", err)
	}
	return app, route
}

func TestDispatchSetAttr(t *testing.T) {
	app, route := newTestApp(t)
	if err := route.Handle("disable", func(p *Page, args Args) error {
		return args.Element(0).SetAttr("disabled", "true")
	}); err != nil {
		t.Fatalf("Handle() error=%v", err)
	}

	rec := &recorder{}
	found, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{
			Func:              "disable",
			Args:              []json.RawMessage{elementArg("button#submit")},
			SelectorToElement: true,
			URL:               "/",
			HTML:              formPage,
		},
		Channel: rec,
	})
	if err != nil || !found {
		t.Fatalf("Dispatch() found=%v error=%v", found, err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d instructions, want 1", len(rec.sent))
	}
	data, err := protocol.Encode(rec.sent[0])
	if err != nil {
		t.Fatalf("Encode() error=%v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	kwargs := got["kwargs"].(map[string]any)
	if got["func"] != "_setAttr" || kwargs["selector"] != "button#submit" || kwargs["name"] != "disabled" || kwargs["value"] != "true" {
		t.Errorf("Encode() = %s", data)
	}
}

func TestDispatchResolvesElementRef(t *testing.T) {
	app, route := newTestApp(t)
	var got *Element
	var missing *Element
	var plain string
	route.Handle("inspect", func(p *Page, args Args) error {
		got = args.Element(0)
		missing = args.Element(1)
		plain = args.String(2)
		return nil
	})

	_, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{
			Func:              "inspect",
			Args:              []json.RawMessage{elementArg("div#box"), elementArg("span#gone"), json.RawMessage(`"hi"`)},
			SelectorToElement: true,
			URL:               "/",
			HTML:              formPage,
		},
		Channel: &recorder{},
	})
	if err != nil {
		t.Fatalf("Dispatch() error=%v", err)
	}
	if got == nil || got.ID() != "box" {
		t.Fatalf("Element(0) = %v, want div#box", got)
	}
	if len(got.Children()) != 2 {
		t.Errorf("len(Children()) = %d, want 2", len(got.Children()))
	}
	if missing != nil {
		t.Errorf("Element(1) = %v, want nil", missing)
	}
	if plain != "hi" {
		t.Errorf("String(2) = %q, want hi", plain)
	}
}

func TestDispatchWithoutResolveFlag(t *testing.T) {
	app, route := newTestApp(t)
	var arg Arg
	route.Handle("raw", func(p *Page, args Args) error {
		arg = args[0]
		return nil
	})
	app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{
			Func: "raw",
			Args: []json.RawMessage{elementArg("div#box")},
			URL:  "/",
			HTML: formPage,
		},
		Channel: &recorder{},
	})
	if arg.IsElement() || arg.Element != nil {
		t.Errorf("argument resolved without selector-to-element: %+v", arg)
	}
}

func TestDispatchMissingHandler(t *testing.T) {
	app, _ := newTestApp(t)
	rec := &recorder{}
	found, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "nope", URL: "/", HTML: formPage},
		Channel: rec,
	})
	if found || err != nil {
		t.Errorf("Dispatch() found=%v error=%v, want false, nil", found, err)
	}
	if len(rec.sent) != 0 {
		t.Errorf("sent %d instructions, want 0", len(rec.sent))
	}
}

func TestDispatchAppWideAndRouteHandlers(t *testing.T) {
	app, route := newTestApp(t)
	var calls []string
	app.Handle("ping", func(p *Page, args Args) error { calls = append(calls, "app"); return nil })
	route.Handle("ping", func(p *Page, args Args) error { calls = append(calls, "route"); return nil })
	app.Handle("pong", func(p *Page, args Args) error { calls = append(calls, "pong:"+p.URL()); return nil })

	for _, fn := range []string{"ping", "pong"} {
		app.Dispatch(context.Background(), Event{
			Message: &protocol.EventMessage{Func: fn, URL: "/", HTML: formPage},
			Channel: &recorder{},
		})
	}
	if strings.Join(calls, ",") != "route,pong:/" {
		t.Errorf("calls = %v", calls)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	app, route := newTestApp(t)
	boom := errors.New("boom")
	route.Handle("fail", func(p *Page, args Args) error { return boom })
	found, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "fail", URL: "/", HTML: formPage},
		Channel: &recorder{},
	})
	if !found || !errors.Is(err, boom) {
		t.Errorf("Dispatch() found=%v error=%v, want true, boom", found, err)
	}
}

func TestPageDetachedAfterDispatch(t *testing.T) {
	app, route := newTestApp(t)
	var kept *Element
	route.Handle("keep", func(p *Page, args Args) error {
		kept = p.ElementByID("box")
		return nil
	})
	rec := &recorder{}
	app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "keep", URL: "/", HTML: formPage},
		Channel: rec,
	})

	if kept.Page().IsLive() {
		t.Fatal("page still live after Dispatch()")
	}
	if err := kept.SetAttr("class", "late"); err != nil {
		t.Fatalf("SetAttr() error=%v", err)
	}
	if len(rec.sent) != 0 {
		t.Errorf("detached element sent %d instructions", len(rec.sent))
	}
	if v, _ := kept.Attr("class"); v != "late" {
		t.Errorf("server copy not updated: class=%q", v)
	}
}

func TestPageDetachedAfterFailedHandler(t *testing.T) {
	tests := []struct {
		name    string
		handler func(kept **Element) Handler
	}{
		{"error", func(kept **Element) Handler {
			return func(p *Page, args Args) error {
				*kept = p.ElementByID("box")
				return errors.New("boom")
			}
		}},
		{"panic", func(kept **Element) Handler {
			return func(p *Page, args Args) error {
				*kept = p.ElementByID("box")
				panic("boom")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, route := newTestApp(t)
			var kept *Element
			route.Handle("fail", tt.handler(&kept))
			rec := &recorder{}

			func() {
				defer func() { recover() }()
				app.Dispatch(context.Background(), Event{
					Message: &protocol.EventMessage{Func: "fail", URL: "/", HTML: formPage},
					Channel: rec,
				})
			}()

			if kept == nil {
				t.Fatal("handler did not run")
			}
			if kept.Page().IsLive() {
				t.Fatal("page still live after failed handler")
			}
			if err := kept.SetAttr("class", "late"); err != nil {
				t.Fatalf("SetAttr() error=%v", err)
			}
			if len(rec.sent) != 0 {
				t.Errorf("detached element sent %d instructions", len(rec.sent))
			}
		})
	}
}

func TestMutationsUseSelectorBeforeChange(t *testing.T) {
	app, route := newTestApp(t)
	route.Handle("rename", func(p *Page, args Args) error {
		els, err := p.Select("p")
		if err != nil {
			return err
		}
		if err := els[1].SetID("second"); err != nil {
			return err
		}
		return els[1].SetInnerHTML("<b>2</b>")
	})
	rec := &recorder{}
	if _, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "rename", URL: "/", HTML: formPage},
		Channel: rec,
	}); err != nil {
		t.Fatalf("Dispatch() error=%v", err)
	}

	if len(rec.sent) != 2 {
		t.Fatalf("sent %d instructions, want 2", len(rec.sent))
	}
	if got, want := rec.sent[0].Selector, "div#box > p:nth-of-type(2)"; got != want {
		t.Errorf("SetID selector = %q, want %q", got, want)
	}
	if got, want := rec.sent[1].Selector, "p#second"; got != want {
		t.Errorf("SetInnerHTML selector = %q, want %q", got, want)
	}
	if rec.sent[1].Op != protocol.OpSetContent || rec.sent[1].HTML != "<b>2</b>" {
		t.Errorf("second instruction = %+v", rec.sent[1])
	}
}

func TestElementOnAndStyle(t *testing.T) {
	p, err := NewPage(formPage)
	if err != nil {
		t.Fatalf("NewPage() error=%v", err)
	}
	btn := p.ElementByID("submit")
	if err := btn.On("click", "remove", This, 3); err != nil {
		t.Fatalf("On() error=%v", err)
	}
	if v, _ := btn.Attr("onclick"); v != "remove(this, 3)" {
		t.Errorf("onclick = %q", v)
	}
	if err := btn.On("click", "_private"); !errors.Is(err, ErrInvalidHandlerName) {
		t.Errorf("On(_private) error=%v, want ErrInvalidHandlerName", err)
	}

	if err := btn.SetStyleProperty("color", "red"); err != nil {
		t.Fatalf("SetStyleProperty() error=%v", err)
	}
	if v, ok := btn.StyleProperty("color"); !ok || v != "red" {
		t.Errorf("StyleProperty(color) = %q, %v", v, ok)
	}
}

func TestDetachedPageRejectsBrowserOnlyCalls(t *testing.T) {
	p, err := NewPage(formPage)
	if err != nil {
		t.Fatalf("NewPage() error=%v", err)
	}
	if err := p.Navigate("/next", false); !errors.Is(err, ErrNotLive) {
		t.Errorf("Navigate() error=%v, want ErrNotLive", err)
	}
	if _, err := p.ElementByID("box").Files(false); !errors.Is(err, ErrNotLive) {
		t.Errorf("Files() error=%v, want ErrNotLive", err)
	}
	if err := p.ExposeFunction("late", func(*Page, Args) error { return nil }); !errors.Is(err, ErrNotLive) {
		t.Errorf("ExposeFunction() error=%v, want ErrNotLive", err)
	}
}

func TestFilesRoundTrip(t *testing.T) {
	app, route := newTestApp(t)
	content := "hello"
	rec := &recorder{files: []protocol.FileDescriptor{{
		Name: "a.txt", Size: 5, Type: "text/plain", Selector: "input#f", FileID: "1", Content: &content,
	}}}
	var names []string
	route.Handle("upload", func(p *Page, args Args) error {
		files, err := p.Body().Files(true)
		if err != nil {
			return err
		}
		for _, f := range files {
			names = append(names, f.Name+"="+f.Content)
		}
		return nil
	})
	if _, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "upload", URL: "/", HTML: formPage},
		Channel: rec,
	}); err != nil {
		t.Fatalf("Dispatch() error=%v", err)
	}
	if strings.Join(names, ",") != "a.txt=hello" {
		t.Errorf("files = %v", names)
	}
	if rec.sent[0].Op != protocol.OpGetFiles || !rec.sent[0].WithContent || rec.sent[0].Selector != "html > body:nth-of-type(1)" {
		t.Errorf("request = %+v", rec.sent[0])
	}
}

func TestExposeFunction(t *testing.T) {
	app, route := newTestApp(t)
	route.Handle("setup", func(p *Page, args Args) error {
		return p.ExposeFunction("later", func(*Page, Args) error { return nil })
	})
	rec := &recorder{}
	if _, err := app.Dispatch(context.Background(), Event{
		Message: &protocol.EventMessage{Func: "setup", URL: "/", HTML: formPage},
		Channel: rec,
	}); err != nil {
		t.Fatalf("Dispatch() error=%v", err)
	}
	if len(rec.sent) != 1 || rec.sent[0].Op != protocol.OpAddScript || !strings.Contains(rec.sent[0].Script, "function later(") {
		t.Fatalf("sent = %+v", rec.sent)
	}
	if _, _, ok := app.Lookup("/", "later"); !ok {
		t.Error("Lookup(later) not found after ExposeFunction()")
	}
}

func TestDispatchCarriesUserVars(t *testing.T) {
	app, route := newTestApp(t)
	store := session.NewMemoryStore()
	defer store.Close()
	vars, err := store.Vars("u1")
	if err != nil {
		t.Fatalf("Vars() error=%v", err)
	}
	route.Handle("count", func(p *Page, args Args) error {
		p.Vars().Update(func(m map[string]any) {
			n, _ := m["n"].(int)
			m["n"] = n + 1
		})
		return nil
	})
	for i := 0; i < 2; i++ {
		app.Dispatch(context.Background(), Event{
			Message: &protocol.EventMessage{Func: "count", URL: "/", HTML: formPage},
			Channel: &recorder{},
			UID:     "u1",
			Vars:    vars,
		})
	}
	if n, _ := vars.Get("n"); n != 2 {
		t.Errorf("n = %v, want 2", n)
	}
}
