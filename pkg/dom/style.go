package dom

import "strings"

type declaration struct {
	name  string
	value string
}

// parseStyle splits an inline style attribute into declarations. Semicolons
// inside quotes or parentheses do not end a declaration.
func parseStyle(style string) []declaration {
	var (
		decls []declaration
		depth int
		quote rune
		start int
	)
	flush := func(end int) {
		part := style[start:end]
		start = end + 1
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" {
			return
		}
		decls = append(decls, declaration{name: name, value: value})
	}
	for i, r := range style {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case r == ';' && depth == 0:
			flush(i)
		}
	}
	if start < len(style) {
		flush(len(style))
	}
	return decls
}

func formatStyle(decls []declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.name + ": " + d.value + ";"
	}
	return strings.Join(parts, " ")
}

// StyleProperty returns the value of a property declared in the style
// attribute. Later declarations win, as in CSS.
func (e *Element) StyleProperty(name string) (string, bool) {
	style, ok := e.Attr("style")
	if !ok {
		return "", false
	}
	name = strings.ToLower(name)
	var (
		value string
		found bool
	)
	for _, d := range parseStyle(style) {
		if d.name == name {
			value, found = d.value, true
		}
	}
	return value, found
}

// StyleAfterSet returns the style attribute value that results from
// setting property name to value. Existing declarations keep their order.
func (e *Element) StyleAfterSet(name, value string) string {
	style, _ := e.Attr("style")
	name = strings.ToLower(name)
	decls := parseStyle(style)
	set := false
	for i := range decls {
		if decls[i].name == name {
			decls[i].value = value
			set = true
		}
	}
	if !set {
		decls = append(decls, declaration{name: name, value: value})
	}
	return formatStyle(decls)
}

// SetStyleProperty sets a property in the style attribute.
func (e *Element) SetStyleProperty(name, value string) {
	e.SetAttr("style", e.StyleAfterSet(name, value))
}
