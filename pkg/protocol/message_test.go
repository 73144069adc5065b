package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeInboundEvent(t *testing.T) {
	data := `{"type":"page","func":"save","args":[{"type":"element","selector":"div#box"},3,"x"],
		"selector-to-element":true,"url":"/","html":"<html></html>","uid":null,"extra":1}`

	in, err := DecodeInbound([]byte(data))
	if err != nil {
		t.Fatalf("DecodeInbound() error=%v", err)
	}
	if in.Reply != nil || in.Event == nil {
		t.Fatalf("DecodeInbound() = %+v, want event", in)
	}
	ev := in.Event
	if ev.Func != "save" || ev.URL != "/" || ev.HTML != "<html></html>" || !ev.SelectorToElement {
		t.Errorf("event = %+v", ev)
	}
	if ev.UID != nil {
		t.Errorf("UID = %v, want nil", *ev.UID)
	}
	if len(ev.Args) != 3 {
		t.Fatalf("len(Args) = %d, want 3", len(ev.Args))
	}
	sel, ok := ParseElementRef(ev.Args[0])
	if !ok || sel != "div#box" {
		t.Errorf("ParseElementRef(args[0]) = %q, %v; want div#box, true", sel, ok)
	}
	if _, ok := ParseElementRef(ev.Args[1]); ok {
		t.Error("ParseElementRef(3) ok=true, want false")
	}
}

func TestDecodeInboundReply(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"save files","data":"abc","msg-num":4,"end":false}`))
	if err != nil {
		t.Fatalf("DecodeInbound() error=%v", err)
	}
	if in.Reply == nil {
		t.Fatalf("DecodeInbound() = %+v, want reply", in)
	}
	r := in.Reply
	if r.MsgNum != 4 || r.Kind != ReplyChunk || r.End || string(r.Data) != `"abc"` {
		t.Errorf("reply = %+v", r)
	}

	// Untyped replies default to data.
	in, err = DecodeInbound([]byte(`{"data":{"a":1},"msg-num":2}`))
	if err != nil {
		t.Fatalf("DecodeInbound() error=%v", err)
	}
	if in.Reply.Kind != ReplyData {
		t.Errorf("Kind = %q, want %q", in.Reply.Kind, ReplyData)
	}
}

func TestDecodeInboundMissingFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"event_without_func", `{"type":"page","args":[]}`},
		{"event_without_url", `{"type":"page","func":"go","args":[],"html":"<html></html>"}`},
		{"event_without_html", `{"type":"page","func":"go","args":[],"url":"/"}`},
		{"event_with_null_html", `{"type":"page","func":"go","args":[],"url":"/","html":null}`},
		{"reply_without_msg_num", `{"type":"files","data":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.data))
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("DecodeInbound() error=%v, want ErrMissingField", err)
			}
		})
	}

	var pe *ProtocolError
	if _, err := DecodeInbound([]byte(`{"type":`)); !errors.As(err, &pe) {
		t.Errorf("DecodeInbound(truncated) error=%v, want *ProtocolError", err)
	}
}

func TestEncodeEventDecodes(t *testing.T) {
	uid := "w1"
	ev := &EventMessage{
		Func: "go",
		Args: []json.RawMessage{json.RawMessage(`1`)},
		URL:  "/a",
		HTML: "<p>x</p>",
		UID:  &uid,
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error=%v", err)
	}
	in, err := DecodeInbound(data)
	if err != nil {
		t.Fatalf("DecodeInbound() error=%v", err)
	}
	if in.Event == nil || in.Event.Func != "go" || in.Event.UID == nil || *in.Event.UID != "w1" {
		t.Errorf("decoded = %+v", in.Event)
	}
}

func TestDecodeFileDescriptors(t *testing.T) {
	data := json.RawMessage(`[{"name":"a.txt","size":5,"file-type":"text/plain","last-modified":1700000000000,
		"selector":"input#upload","file-id":"0","content":"hello"},
		{"name":"b.bin","size":2,"file-type":"","last-modified":0,"selector":"input#upload","file-id":"1"}]`)

	files, err := DecodeFileDescriptors(data)
	if err != nil {
		t.Fatalf("DecodeFileDescriptors() error=%v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	if files[0].Name != "a.txt" || files[0].Size != 5 || files[0].Content == nil || *files[0].Content != "hello" {
		t.Errorf("files[0] = %+v", files[0])
	}
	if files[1].Content != nil {
		t.Errorf("files[1].Content = %q, want nil", *files[1].Content)
	}

	if _, err := DecodeFileDescriptors(json.RawMessage(`[{"name":"x"}]`)); !errors.Is(err, ErrMissingField) {
		t.Errorf("DecodeFileDescriptors(no id) error=%v, want ErrMissingField", err)
	}

	empty, err := DecodeFileDescriptors(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("DecodeFileDescriptors(nil) = %v, %v", empty, err)
	}
}
