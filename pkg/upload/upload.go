package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/vango-dev/domwire/pkg/protocol"
)

var (
	// ErrIncompleteTransfer is returned when a chunk stream stops before the
	// client sent its end marker.
	ErrIncompleteTransfer = errors.New("upload: transfer ended without end marker")

	// ErrUnexpectedReply is returned when the client answers a file request
	// with a reply of the wrong kind.
	ErrUnexpectedReply = errors.New("upload: unexpected reply kind")

	// ErrNotFound is returned when a stored file doesn't exist.
	ErrNotFound = errors.New("upload: file not found")

	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("upload: file too large")
)

// Transport issues reply-expecting instructions on a connection.
//
// Call returns the single reply to inst. Stream passes every reply carrying
// inst's message number to fn, in arrival order, and returns nil once fn has
// seen a reply with End set. Both stamp inst with a fresh message number.
type Transport interface {
	Call(ctx context.Context, inst protocol.Instruction) (*protocol.Reply, error)
	Stream(ctx context.Context, inst protocol.Instruction, fn func(*protocol.Reply) error) error
}

// File is a file the user selected in a file input. Its content stays in
// the browser until read with Chunks, Save, ReadAll or SaveTo.
type File struct {
	Name         string
	Size         int64
	Type         string
	LastModified time.Time
	Selector     string // Selector of the input the file came from
	ID           string // Transfer id assigned by the client runtime

	// Content holds the text content when it was requested eagerly.
	Content    string
	HasContent bool

	// Binary makes chunk reads decode bytes instead of text. Set it before
	// reading binary files; text decoding mangles non-UTF-8 content.
	Binary bool

	t Transport
}

// NewFile builds a File from its wire descriptor.
func NewFile(desc protocol.FileDescriptor, t Transport) *File {
	f := &File{
		Name:         desc.Name,
		Size:         desc.Size,
		Type:         desc.Type,
		LastModified: time.UnixMilli(desc.LastModified),
		Selector:     desc.Selector,
		ID:           desc.FileID,
		t:            t,
	}
	if desc.Content != nil {
		f.Content, f.HasContent = *desc.Content, true
	}
	return f
}

// String returns a short description of the file.
func (f *File) String() string {
	return fmt.Sprintf("<File %s>", f.Name)
}

// Request asks the client for the files selected in the input at selector
// and blocks until it answers.
func Request(ctx context.Context, t Transport, selector string, withContent bool) ([]*File, error) {
	reply, err := t.Call(ctx, protocol.GetFiles(selector, withContent))
	if err != nil {
		return nil, err
	}
	if reply.Kind != protocol.ReplyFiles {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply.Kind)
	}
	descs, err := protocol.DecodeFileDescriptors(reply.Data)
	if err != nil {
		return nil, err
	}
	files := make([]*File, len(descs))
	for i, d := range descs {
		files[i] = NewFile(d, t)
	}
	return files, nil
}

// Chunks streams the file content from the client and passes each chunk to
// fn in arrival order. It returns ErrIncompleteTransfer if the stream stops
// before the end marker.
func (f *File) Chunks(ctx context.Context, fn func([]byte) error) error {
	if f.t == nil {
		return fmt.Errorf("upload: %s: no transport", f.Name)
	}

	ended := false
	var carry string
	err := f.t.Stream(ctx, protocol.SaveFile(f.ID, f.Binary), func(r *protocol.Reply) error {
		if r.Kind != protocol.ReplyChunk {
			return fmt.Errorf("%w: %q", ErrUnexpectedReply, r.Kind)
		}
		data := r.Data
		if !f.Binary {
			data, carry = joinSurrogates(carry, data, r.End)
		}
		chunk, err := decodeChunk(data, f.Binary)
		if err != nil {
			return err
		}
		if r.End {
			ended = true
		}
		if len(chunk) == 0 {
			return nil
		}
		return fn(chunk)
	})
	if err != nil {
		if ended {
			return err
		}
		return errors.Join(ErrIncompleteTransfer, err)
	}
	if !ended {
		return ErrIncompleteTransfer
	}
	return nil
}

// Save writes the file content to w.
func (f *File) Save(ctx context.Context, w io.Writer) error {
	return f.Chunks(ctx, func(b []byte) error {
		_, err := w.Write(b)
		return err
	})
}

// ReadAll returns the whole file content.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if f.Size > 0 {
		buf.Grow(int(f.Size))
	}
	if err := f.Save(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveTo streams the file into store and returns the stored id.
func (f *File) SaveTo(ctx context.Context, store Store) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(f.Save(ctx, pw))
	}()
	id, err := store.Save(ctx, f.Name, f.Type, f.Size, pr)
	// Unblock the writer if the store stopped reading early.
	pr.CloseWithError(err)
	return id, err
}

// decodeChunk decodes one chunk payload: a JSON string in text mode, a JSON
// array of byte values in binary mode.
func decodeChunk(data json.RawMessage, binary bool) ([]byte, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if !binary {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("upload: text chunk: %w", err)
		}
		return []byte(s), nil
	}
	var vals []int
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("upload: binary chunk: %w", err)
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("upload: binary chunk: value %d out of range", v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// joinSurrogates prepends carry to the JSON string literal lit and, unless
// this is the last chunk, moves a trailing high surrogate escape into the
// returned carry. A runtime that cuts text by UTF-16 units can split a pair
// across two chunks; decoding each half alone would yield U+FFFD twice.
func joinSurrogates(carry string, lit json.RawMessage, last bool) (json.RawMessage, string) {
	lit = bytes.TrimSpace(lit)
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return lit, ""
	}
	if carry != "" {
		joined := make([]byte, 0, len(lit)+len(carry))
		joined = append(joined, '"')
		joined = append(joined, carry...)
		joined = append(joined, lit[1:]...)
		lit = joined
	}
	if last {
		return lit, ""
	}
	return splitHighSurrogate(lit)
}

// splitHighSurrogate removes a trailing \uD800-\uDBFF escape from the JSON
// string literal lit.
func splitHighSurrogate(lit json.RawMessage) (json.RawMessage, string) {
	n := len(lit)
	if n < 8 {
		return lit, ""
	}
	esc := lit[n-7 : n-1]
	if esc[0] != '\\' || esc[1] != 'u' {
		return lit, ""
	}
	v, err := strconv.ParseUint(string(esc[2:]), 16, 16)
	if err != nil || v < 0xD800 || v > 0xDBFF {
		return lit, ""
	}
	// An escaped backslash before "u" makes it literal text.
	backslashes := 0
	for i := n - 8; i > 0 && lit[i] == '\\'; i-- {
		backslashes++
	}
	if backslashes%2 == 1 {
		return lit, ""
	}
	rest := make([]byte, 0, n-6)
	rest = append(rest, lit[:n-7]...)
	rest = append(rest, '"')
	return rest, string(esc)
}
