package protocol

import (
	"encoding/json"
	"fmt"
)

// Op identifies a DOM mutation or control directive sent from server to client.
type Op uint8

// Instruction operations. The zero value is invalid so that an unset Op never
// encodes.
const (
	OpReplaceElement  Op = iota + 1 // Replace an element's outer HTML
	OpReplaceElements               // Replace several elements' outer HTML
	OpSetAttr                       // Set an attribute
	OpDelAttr                       // Remove an attribute
	OpSetContent                    // Set inner HTML
	OpAddContent                    // Append to inner HTML
	OpSetDoc                        // Replace the whole document
	OpAddScript                     // Append a script to the body
	OpGoTo                          // Navigate to a URL
	OpGetFiles                      // Request file descriptors (reply expected)
	OpSaveFile                      // Request file chunks (reply stream expected)
)

// Wire names understood by the client runtime.
const (
	NameReplaceElement  = "_replaceElement"
	NameReplaceElements = "_replaceElements"
	NameSetAttr         = "_setAttr"
	NameDelAttr         = "_delAttr"
	NameSetContent      = "_setContent"
	NameAddContent      = "_addContent"
	NameSetDoc          = "_setDoc"
	NameAddScript       = "_addScript"
	NameGoTo            = "_goTo"
	NameGetFiles        = "_getFiles"
	NameSaveFile        = "_saveFile"
)

var opNames = map[Op]string{
	OpReplaceElement:  NameReplaceElement,
	OpReplaceElements: NameReplaceElements,
	OpSetAttr:         NameSetAttr,
	OpDelAttr:         NameDelAttr,
	OpSetContent:      NameSetContent,
	OpAddContent:      NameAddContent,
	OpSetDoc:          NameSetDoc,
	OpAddScript:       NameAddScript,
	OpGoTo:            NameGoTo,
	OpGetFiles:        NameGetFiles,
	OpSaveFile:        NameSaveFile,
}

var namesToOps = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpReplaceElement:
		return "ReplaceElement"
	case OpReplaceElements:
		return "ReplaceElements"
	case OpSetAttr:
		return "SetAttr"
	case OpDelAttr:
		return "DelAttr"
	case OpSetContent:
		return "SetContent"
	case OpAddContent:
		return "AddContent"
	case OpSetDoc:
		return "SetDoc"
	case OpAddScript:
		return "AddScript"
	case OpGoTo:
		return "GoTo"
	case OpGetFiles:
		return "GetFiles"
	case OpSaveFile:
		return "SaveFile"
	default:
		return "Unknown"
	}
}

// WireName returns the name the client runtime dispatches on, or "" for an
// unknown operation.
func (op Op) WireName() string {
	return opNames[op]
}

// ExpectsReply reports whether instructions of this operation carry a message
// number and block the sender until the client answers.
func (op Op) ExpectsReply() bool {
	return op == OpGetFiles || op == OpSaveFile
}

// OpFromName resolves a wire name to its operation.
func OpFromName(name string) (Op, bool) {
	op, ok := namesToOps[name]
	return op, ok
}

// Instruction is a single server-to-client directive.
//
// Only the fields relevant to Op are meaningful; the rest stay at their zero
// value so two instructions built the same way compare equal.
type Instruction struct {
	Op Op

	Selector    string   // Target element (most ops) or file input (GetFiles)
	Selectors   []string // ReplaceElements targets
	Elements    []string // ReplaceElements markup, parallel to Selectors
	Name        string   // Attribute name
	Value       string   // Attribute value
	HTML        string   // Element markup, inner content or whole document
	Script      string   // AddScript source
	URL         string   // GoTo target
	NewTab      bool     // GoTo opens a new tab
	WithContent bool     // GetFiles includes text content eagerly
	FileID      string   // SaveFile transfer id
	Binary      bool     // SaveFile streams bytes instead of text

	// MsgNum is set by the connection when the instruction expects a reply.
	// Zero means no reply is expected.
	MsgNum uint64
}

// ReplaceElement replaces the element at selector with html.
func ReplaceElement(selector, html string) Instruction {
	return Instruction{Op: OpReplaceElement, Selector: selector, HTML: html}
}

// ReplaceElements replaces each selectors[i] with html[i].
func ReplaceElements(selectors, html []string) (Instruction, error) {
	if len(selectors) != len(html) {
		return Instruction{}, fmt.Errorf("%w: %d selectors for %d elements",
			ErrMismatchedElements, len(selectors), len(html))
	}
	inst := Instruction{
		Op:        OpReplaceElements,
		Selectors: append([]string{}, selectors...),
		Elements:  append([]string{}, html...),
	}
	return inst, nil
}

// SetAttr sets attribute name to value on the element at selector.
func SetAttr(selector, name, value string) Instruction {
	return Instruction{Op: OpSetAttr, Selector: selector, Name: name, Value: value}
}

// DelAttr removes attribute name from the element at selector.
func DelAttr(selector, name string) Instruction {
	return Instruction{Op: OpDelAttr, Selector: selector, Name: name}
}

// SetContent sets the inner HTML of the element at selector.
func SetContent(selector, html string) Instruction {
	return Instruction{Op: OpSetContent, Selector: selector, HTML: html}
}

// AddContent appends html to the inner HTML of the element at selector.
func AddContent(selector, html string) Instruction {
	return Instruction{Op: OpAddContent, Selector: selector, HTML: html}
}

// SetDoc replaces the whole document.
func SetDoc(html string) Instruction {
	return Instruction{Op: OpSetDoc, HTML: html}
}

// AddScript injects a script element into the document body.
func AddScript(source string) Instruction {
	return Instruction{Op: OpAddScript, Script: source}
}

// GoTo navigates the client to url, optionally in a new tab.
func GoTo(url string, newTab bool) Instruction {
	return Instruction{Op: OpGoTo, URL: url, NewTab: newTab}
}

// GetFiles requests the descriptors of the files selected in the file input
// at selector.
func GetFiles(selector string, withContent bool) Instruction {
	return Instruction{Op: OpGetFiles, Selector: selector, WithContent: withContent}
}

// SaveFile requests the contents of a previously described file as a stream
// of chunks.
func SaveFile(fileID string, binary bool) Instruction {
	return Instruction{Op: OpSaveFile, FileID: fileID, Binary: binary}
}

// NewInstruction builds an instruction from a wire name and its kwargs.
// Unknown names are rejected with ErrUnknownInstruction.
func NewInstruction(name string, kwargs map[string]any) (Instruction, error) {
	raw, err := json.Marshal(kwargs)
	if err != nil {
		return Instruction{}, newProtocolError("new instruction", "kwargs are not encodable", err)
	}
	return decodeKwargs(name, raw)
}

// wireInstruction is the JSON envelope {"func": ..., "kwargs": {...}}.
type wireInstruction struct {
	Func   string          `json:"func"`
	Kwargs json.RawMessage `json:"kwargs"`
}

// Encode encodes an instruction to its JSON wire form.
func Encode(inst Instruction) ([]byte, error) {
	name := inst.Op.WireName()
	if name == "" {
		return nil, fmt.Errorf("%w: op %d", ErrUnknownInstruction, inst.Op)
	}
	if inst.Op.ExpectsReply() && inst.MsgNum == 0 {
		return nil, fmt.Errorf("%w: %s without msg-num", ErrMissingField, name)
	}
	if !inst.Op.ExpectsReply() && inst.MsgNum != 0 {
		return nil, fmt.Errorf("protocol: %s cannot carry msg-num", name)
	}

	kw := make(map[string]any, 4)
	switch inst.Op {
	case OpReplaceElement:
		kw["selector"] = inst.Selector
		kw["element"] = inst.HTML
	case OpReplaceElements:
		if len(inst.Selectors) != len(inst.Elements) {
			return nil, ErrMismatchedElements
		}
		kw["selectors"] = nonNil(inst.Selectors)
		kw["elements"] = nonNil(inst.Elements)
	case OpSetAttr:
		kw["selector"] = inst.Selector
		kw["name"] = inst.Name
		kw["value"] = inst.Value
	case OpDelAttr:
		kw["selector"] = inst.Selector
		kw["name"] = inst.Name
	case OpSetContent, OpAddContent:
		kw["selector"] = inst.Selector
		kw["content"] = inst.HTML
	case OpSetDoc:
		kw["doc"] = inst.HTML
	case OpAddScript:
		kw["script"] = inst.Script
	case OpGoTo:
		kw["url"] = inst.URL
		kw["new"] = inst.NewTab
	case OpGetFiles:
		kw["selector"] = inst.Selector
		kw["with_content"] = inst.WithContent
	case OpSaveFile:
		kw["file-id"] = inst.FileID
		kw["binary"] = inst.Binary
	}
	if inst.MsgNum != 0 {
		kw["msg-num"] = inst.MsgNum
	}

	kwargs, err := json.Marshal(kw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireInstruction{Func: name, Kwargs: kwargs})
}

// DecodeInstruction decodes an instruction from its JSON wire form.
// Unknown fields are ignored; unknown names and missing required kwargs
// produce a *ProtocolError.
func DecodeInstruction(data []byte) (Instruction, error) {
	var w wireInstruction
	if err := json.Unmarshal(data, &w); err != nil {
		return Instruction{}, newProtocolError("decode instruction", "malformed JSON", err)
	}
	if w.Func == "" {
		return Instruction{}, newProtocolError("decode instruction", "missing func", ErrMissingField)
	}
	return decodeKwargs(w.Func, w.Kwargs)
}

// instructionKwargs lists every kwarg the client runtime understands.
// Pointers distinguish absent keys from zero values.
type instructionKwargs struct {
	Selector    *string  `json:"selector"`
	Selectors   []string `json:"selectors"`
	Elements    []string `json:"elements"`
	Element     *string  `json:"element"`
	Name        *string  `json:"name"`
	Value       *string  `json:"value"`
	Content     *string  `json:"content"`
	Doc         *string  `json:"doc"`
	Script      *string  `json:"script"`
	URL         *string  `json:"url"`
	New         *bool    `json:"new"`
	WithContent *bool    `json:"with_content"`
	FileID      *string  `json:"file-id"`
	Binary      *bool    `json:"binary"`
	MsgNum      *uint64  `json:"msg-num"`
}

func decodeKwargs(name string, raw json.RawMessage) (Instruction, error) {
	op, ok := OpFromName(name)
	if !ok {
		return Instruction{}, newProtocolError("decode instruction", "unknown instruction "+name, ErrUnknownInstruction)
	}

	var kw instructionKwargs
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &kw); err != nil {
			return Instruction{}, newProtocolError("decode instruction", "malformed kwargs for "+name, err)
		}
	}

	missing := func(key string) (Instruction, error) {
		return Instruction{}, newProtocolError("decode instruction", name+" missing "+key, ErrMissingField)
	}

	inst := Instruction{Op: op}
	switch op {
	case OpReplaceElement:
		if kw.Selector == nil {
			return missing("selector")
		}
		if kw.Element == nil {
			return missing("element")
		}
		inst.Selector, inst.HTML = *kw.Selector, *kw.Element
	case OpReplaceElements:
		if kw.Selectors == nil {
			return missing("selectors")
		}
		if kw.Elements == nil {
			return missing("elements")
		}
		if len(kw.Selectors) != len(kw.Elements) {
			return Instruction{}, newProtocolError("decode instruction", name+" length mismatch", ErrMismatchedElements)
		}
		inst.Selectors, inst.Elements = kw.Selectors, kw.Elements
	case OpSetAttr:
		if kw.Selector == nil {
			return missing("selector")
		}
		if kw.Name == nil {
			return missing("name")
		}
		if kw.Value == nil {
			return missing("value")
		}
		inst.Selector, inst.Name, inst.Value = *kw.Selector, *kw.Name, *kw.Value
	case OpDelAttr:
		if kw.Selector == nil {
			return missing("selector")
		}
		if kw.Name == nil {
			return missing("name")
		}
		inst.Selector, inst.Name = *kw.Selector, *kw.Name
	case OpSetContent, OpAddContent:
		if kw.Selector == nil {
			return missing("selector")
		}
		if kw.Content == nil {
			return missing("content")
		}
		inst.Selector, inst.HTML = *kw.Selector, *kw.Content
	case OpSetDoc:
		if kw.Doc == nil {
			return missing("doc")
		}
		inst.HTML = *kw.Doc
	case OpAddScript:
		if kw.Script == nil {
			return missing("script")
		}
		inst.Script = *kw.Script
	case OpGoTo:
		if kw.URL == nil {
			return missing("url")
		}
		inst.URL = *kw.URL
		inst.NewTab = kw.New != nil && *kw.New
	case OpGetFiles:
		if kw.Selector == nil {
			return missing("selector")
		}
		inst.Selector = *kw.Selector
		inst.WithContent = kw.WithContent != nil && *kw.WithContent
	case OpSaveFile:
		if kw.FileID == nil {
			return missing("file-id")
		}
		inst.FileID = *kw.FileID
		inst.Binary = kw.Binary != nil && *kw.Binary
	}

	if kw.MsgNum != nil {
		if !op.ExpectsReply() {
			return Instruction{}, newProtocolError("decode instruction", name+" cannot carry msg-num", ErrMalformedMessage)
		}
		inst.MsgNum = *kw.MsgNum
	}
	return inst, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
