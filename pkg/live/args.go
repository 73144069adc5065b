package live

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vango-dev/domwire/pkg/protocol"
)

// Arg is one argument of an event. Element references are resolved before
// the handler runs: Selector is set and Element holds the matching element,
// or nil if the selector matched nothing.
type Arg struct {
	Raw      json.RawMessage
	Selector string
	Element  *Element
}

// IsElement reports whether the argument was an element reference.
func (a Arg) IsElement() bool {
	return a.Selector != ""
}

// String returns the argument as a string. JSON strings are unquoted; other
// values are returned in their JSON form.
func (a Arg) String() string {
	var s string
	if err := json.Unmarshal(a.Raw, &s); err == nil {
		return s
	}
	return string(a.Raw)
}

// Int returns the argument as an int. Numeric strings are accepted since
// markup arguments are usually quoted.
func (a Arg) Int() (int, error) {
	var n int
	if err := json.Unmarshal(a.Raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(a.Raw, &s); err == nil {
		return strconv.Atoi(s)
	}
	return 0, fmt.Errorf("live: argument %s is not an int", a.Raw)
}

// Decode unmarshals the argument into v.
func (a Arg) Decode(v any) error {
	return json.Unmarshal(a.Raw, v)
}

// Args are the arguments of an event in call order.
type Args []Arg

// Element returns argument i as an element, or nil.
func (a Args) Element(i int) *Element {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i].Element
}

// String returns argument i as a string, or "" if absent.
func (a Args) String(i int) string {
	if i < 0 || i >= len(a) {
		return ""
	}
	return a[i].String()
}

// resolveArgs turns raw event arguments into Args. Element references are
// only resolved when the event says it carries them.
func resolveArgs(p *Page, raw []json.RawMessage, resolve bool) Args {
	args := make(Args, len(raw))
	for i, r := range raw {
		args[i] = Arg{Raw: r}
		if !resolve {
			continue
		}
		sel, ok := protocol.ParseElementRef(r)
		if !ok {
			continue
		}
		args[i].Selector = sel
		if el, err := p.SelectOne(sel); err == nil {
			args[i].Element = el
		}
	}
	return args
}
