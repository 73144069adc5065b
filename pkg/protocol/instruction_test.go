package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func mustReplaceElements(t *testing.T, selectors, html []string) Instruction {
	t.Helper()
	inst, err := ReplaceElements(selectors, html)
	if err != nil {
		t.Fatalf("ReplaceElements() error=%v, want nil", err)
	}
	return inst
}

func withMsgNum(inst Instruction, n uint64) Instruction {
	inst.MsgNum = n
	return inst
}

func TestInstructionEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		inst Instruction
	}{
		{"replace_element", ReplaceElement("div#box", `<div id="box">new</div>`)},
		{"replace_elements", mustReplaceElements(t, []string{"li#a", "li#b"}, []string{"<li id=a>1</li>", "<li id=b>2</li>"})},
		{"replace_elements_empty", mustReplaceElements(t, nil, nil)},
		{"set_attr", SetAttr("button#submit", "disabled", "true")},
		{"set_attr_empty_value", SetAttr("input#name", "value", "")},
		{"del_attr", DelAttr("input#agree", "checked")},
		{"set_content", SetContent("p#msg", "<b>hi</b> & bye")},
		{"add_content", AddContent("ul#list", "<li>3</li>")},
		{"set_doc", SetDoc("<!DOCTYPE html><html><body></body></html>")},
		{"add_script", AddScript(`alert("x")`)},
		{"go_to", GoTo("/next", false)},
		{"go_to_new_tab", GoTo("/other?a=1", true)},
		{"get_files", withMsgNum(GetFiles("input#upload", true), 1)},
		{"save_file_binary", withMsgNum(SaveFile("7", true), 42)},
		{"save_file_text", withMsgNum(SaveFile("0", false), 3)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.inst)
			if err != nil {
				t.Fatalf("Encode() error=%v", err)
			}
			got, err := DecodeInstruction(data)
			if err != nil {
				t.Fatalf("DecodeInstruction(%s) error=%v", data, err)
			}
			if !reflect.DeepEqual(got, tc.inst) {
				t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", got, tc.inst)
			}
		})
	}
}

func TestEncodeSetAttrWireShape(t *testing.T) {
	data, err := Encode(SetAttr("button#submit", "disabled", "true"))
	if err != nil {
		t.Fatalf("Encode() error=%v", err)
	}

	var got, want any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error=%v", err)
	}
	wantJSON := `{"func":"_setAttr","kwargs":{"selector":"button#submit","name":"disabled","value":"true"}}`
	if err := json.Unmarshal([]byte(wantJSON), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode() = %s, want %s", data, wantJSON)
	}
}

func TestEncodeMsgNumPlacement(t *testing.T) {
	// Reply-expecting instructions must carry msg-num.
	if _, err := Encode(GetFiles("input#f", false)); !errors.Is(err, ErrMissingField) {
		t.Errorf("Encode(GetFiles without msg-num) error=%v, want ErrMissingField", err)
	}

	// Others must not.
	inst := SetContent("p", "x")
	inst.MsgNum = 9
	if _, err := Encode(inst); err == nil {
		t.Error("Encode(SetContent with msg-num) error=nil, want error")
	}

	data, err := Encode(withMsgNum(SaveFile("1", false), 5))
	if err != nil {
		t.Fatalf("Encode() error=%v", err)
	}
	var w struct {
		Kwargs map[string]any `json:"kwargs"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatal(err)
	}
	if w.Kwargs["msg-num"] != float64(5) {
		t.Errorf("kwargs[msg-num] = %v, want 5", w.Kwargs["msg-num"])
	}
}

func TestEncodeRejectsUnknownOp(t *testing.T) {
	if _, err := Encode(Instruction{}); !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("Encode(zero) error=%v, want ErrUnknownInstruction", err)
	}
	if _, err := Encode(Instruction{Op: Op(200)}); !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("Encode(Op(200)) error=%v, want ErrUnknownInstruction", err)
	}
}

func TestNewInstruction(t *testing.T) {
	inst, err := NewInstruction(NameSetAttr, map[string]any{
		"selector": "a#home", "name": "href", "value": "/",
	})
	if err != nil {
		t.Fatalf("NewInstruction() error=%v", err)
	}
	if want := SetAttr("a#home", "href", "/"); !reflect.DeepEqual(inst, want) {
		t.Errorf("NewInstruction() = %#v, want %#v", inst, want)
	}

	_, err = NewInstruction("_getKey", map[string]any{"key": "x"})
	if !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("NewInstruction(_getKey) error=%v, want ErrUnknownInstruction", err)
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("NewInstruction(_getKey) error type %T, want *ProtocolError", err)
	}
}

func TestReplaceElementsLengthMismatch(t *testing.T) {
	_, err := ReplaceElements([]string{"a", "b"}, []string{"<a></a>"})
	if !errors.Is(err, ErrMismatchedElements) {
		t.Errorf("ReplaceElements() error=%v, want ErrMismatchedElements", err)
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"unknown_name", `{"func":"_explode","kwargs":{}}`, ErrUnknownInstruction},
		{"missing_func", `{"kwargs":{"selector":"p"}}`, ErrMissingField},
		{"missing_selector", `{"func":"_setAttr","kwargs":{"name":"a","value":"b"}}`, ErrMissingField},
		{"missing_kwargs", `{"func":"_setDoc"}`, ErrMissingField},
		{"length_mismatch", `{"func":"_replaceElements","kwargs":{"selectors":["a"],"elements":[]}}`, ErrMismatchedElements},
		{"msg_num_on_mutation", `{"func":"_setDoc","kwargs":{"doc":"","msg-num":1}}`, ErrMalformedMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInstruction([]byte(tc.data))
			if !errors.Is(err, tc.want) {
				t.Errorf("DecodeInstruction() error=%v, want %v", err, tc.want)
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Errorf("DecodeInstruction() error type %T, want *ProtocolError", err)
			}
		})
	}

	if _, err := DecodeInstruction([]byte(`not json`)); err == nil {
		t.Error("DecodeInstruction(garbage) error=nil, want error")
	}
}

func TestDecodeInstructionToleratesExtraFields(t *testing.T) {
	data := `{"func":"_goTo","args":[],"kwargs":{"url":"/x","new":true,"target":"frame"},"v":2}`
	got, err := DecodeInstruction([]byte(data))
	if err != nil {
		t.Fatalf("DecodeInstruction() error=%v", err)
	}
	if want := GoTo("/x", true); !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeInstruction() = %#v, want %#v", got, want)
	}
}

func TestOpString(t *testing.T) {
	if OpSetAttr.String() != "SetAttr" {
		t.Errorf("OpSetAttr.String() = %q", OpSetAttr.String())
	}
	if Op(0).String() != "Unknown" {
		t.Errorf("Op(0).String() = %q", Op(0).String())
	}
	for op := OpReplaceElement; op <= OpSaveFile; op++ {
		name := op.WireName()
		back, ok := OpFromName(name)
		if !ok || back != op {
			t.Errorf("OpFromName(%q) = %v, %v; want %v", name, back, ok, op)
		}
	}
	if !OpGetFiles.ExpectsReply() || OpSetDoc.ExpectsReply() {
		t.Error("ExpectsReply() wrong for GetFiles/SetDoc")
	}
}
