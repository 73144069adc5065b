package protocol

import (
	"bytes"
	"encoding/json"
)

// MessageTypePage marks an inbound message as an event.
const MessageTypePage = "page"

// ReplyKind identifies what a reply carries.
type ReplyKind string

// Reply kinds sent by the client runtime.
const (
	ReplyData  ReplyKind = "data"
	ReplyFiles ReplyKind = "files"
	ReplyChunk ReplyKind = "save files"
)

// EventMessage is a client-initiated handler invocation. It carries the whole
// serialized document as it stood when the event fired.
type EventMessage struct {
	Func string
	Args []json.RawMessage

	// SelectorToElement is set when at least one of Args is an element
	// reference that must be resolved against the document.
	SelectorToElement bool

	URL  string
	HTML string

	// UID identifies the client window for desktop hosts; nil in browsers.
	UID *string
}

// Reply answers an instruction that carried a message number.
type Reply struct {
	MsgNum uint64
	Kind   ReplyKind
	Data   json.RawMessage
	End    bool
}

// Inbound is a classified client message. Exactly one of Event and Reply is
// non-nil.
type Inbound struct {
	Event *EventMessage
	Reply *Reply
}

type wireInbound struct {
	Type              string            `json:"type"`
	Func              *string           `json:"func"`
	Args              []json.RawMessage `json:"args"`
	SelectorToElement bool              `json:"selector-to-element"`
	URL               *string           `json:"url"`
	HTML              *string           `json:"html"`
	UID               *string           `json:"uid"`

	MsgNum *uint64         `json:"msg-num"`
	Data   json.RawMessage `json:"data"`
	End    bool            `json:"end"`
}

// DecodeInbound classifies a client message. Messages of type "page" are
// events; everything else is a reply. An event missing func, url or html,
// or a reply missing msg-num, yields a *ProtocolError wrapping
// ErrMissingField.
func DecodeInbound(data []byte) (Inbound, error) {
	var w wireInbound
	if err := json.Unmarshal(data, &w); err != nil {
		return Inbound{}, newProtocolError("decode inbound", "malformed JSON", err)
	}

	if w.Type == MessageTypePage {
		if w.Func == nil || *w.Func == "" {
			return Inbound{}, newProtocolError("decode event", "missing func", ErrMissingField)
		}
		if w.URL == nil {
			return Inbound{}, newProtocolError("decode event", "missing url", ErrMissingField)
		}
		if w.HTML == nil {
			return Inbound{}, newProtocolError("decode event", "missing html", ErrMissingField)
		}
		args := w.Args
		if args == nil {
			args = []json.RawMessage{}
		}
		return Inbound{Event: &EventMessage{
			Func:              *w.Func,
			Args:              args,
			SelectorToElement: w.SelectorToElement,
			URL:               *w.URL,
			HTML:              *w.HTML,
			UID:               w.UID,
		}}, nil
	}

	if w.MsgNum == nil {
		return Inbound{}, newProtocolError("decode reply", "missing msg-num", ErrMissingField)
	}
	kind := ReplyKind(w.Type)
	if kind == "" {
		kind = ReplyData
	}
	return Inbound{Reply: &Reply{
		MsgNum: *w.MsgNum,
		Kind:   kind,
		Data:   w.Data,
		End:    w.End,
	}}, nil
}

// EncodeEvent encodes an event the way the client runtime sends it.
func EncodeEvent(ev *EventMessage) ([]byte, error) {
	args := ev.Args
	if args == nil {
		args = []json.RawMessage{}
	}
	return json.Marshal(struct {
		Type              string            `json:"type"`
		Func              string            `json:"func"`
		Args              []json.RawMessage `json:"args"`
		SelectorToElement bool              `json:"selector-to-element"`
		URL               string            `json:"url"`
		HTML              string            `json:"html"`
		UID               *string           `json:"uid"`
	}{MessageTypePage, ev.Func, args, ev.SelectorToElement, ev.URL, ev.HTML, ev.UID})
}

// EncodeReply encodes a reply the way the client runtime sends it.
func EncodeReply(r *Reply) ([]byte, error) {
	kind := r.Kind
	if kind == "" {
		kind = ReplyData
	}
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Type   string          `json:"type"`
		Data   json.RawMessage `json:"data"`
		MsgNum uint64          `json:"msg-num"`
		End    bool            `json:"end"`
	}{string(kind), data, r.MsgNum, r.End})
}

// ElementRef is an event argument that refers to an element in the
// serialized document.
type ElementRef struct {
	Type     string `json:"type"`
	Selector string `json:"selector"`
}

// ElementRefType is the type tag of an element reference argument.
const ElementRefType = "element"

// ParseElementRef reports whether raw is an element reference and returns
// its selector.
func ParseElementRef(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return "", false
	}
	var ref ElementRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", false
	}
	if ref.Type != ElementRefType || ref.Selector == "" {
		return "", false
	}
	return ref.Selector, true
}

// FileDescriptor describes one file selected in a file input.
type FileDescriptor struct {
	Name         string  `json:"name"`
	Size         int64   `json:"size"`
	Type         string  `json:"file-type"`
	LastModified int64   `json:"last-modified"`
	Selector     string  `json:"selector"`
	FileID       string  `json:"file-id"`
	Content      *string `json:"content,omitempty"`
}

// DecodeFileDescriptors decodes the data of a files reply. Descriptors
// without a file-id are rejected since their content could never be fetched.
func DecodeFileDescriptors(data json.RawMessage) ([]FileDescriptor, error) {
	if len(data) == 0 || string(data) == "null" {
		return []FileDescriptor{}, nil
	}
	var files []FileDescriptor
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, newProtocolError("decode files", "malformed file list", err)
	}
	for _, f := range files {
		if f.FileID == "" {
			return nil, newProtocolError("decode files", "descriptor for "+f.Name+" missing file-id", ErrMissingField)
		}
	}
	if files == nil {
		files = []FileDescriptor{}
	}
	return files, nil
}
