package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// UniqueSelector returns the selector the client runtime computes for the
// same element in the live page.
//
// The path is built from the element upward. An element with an id
// contributes tag#id and ends the walk. Any other element contributes
// tag:nth-of-type(n), n being its 1-based position among same-tag
// siblings. The root element contributes its bare tag. Segments are joined
// with " > ".
func (e *Element) UniqueSelector() string {
	var path []string
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		tag := strings.ToLower(n.Data)
		if id := attr(n, "id"); id != "" {
			path = append(path, tag+"#"+EscapeIdent(id))
			break
		}
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			path = append(path, tag)
			continue
		}
		path = append(path, tag+":nth-of-type("+strconv.Itoa(nthOfType(n))+")")
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

// Selector returns a selector built from the tag and every attribute, such
// as input[type="text"][name="q"]. Unlike UniqueSelector it may match more
// than one element.
func (e *Element) Selector() string {
	var sb strings.Builder
	sb.WriteString(e.Tag())
	for _, a := range e.n.Attr {
		sb.WriteByte('[')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(a.Val, `\`, `\\`), `"`, `\"`))
		sb.WriteString(`"]`)
	}
	return sb.String()
}

func nthOfType(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && strings.EqualFold(s.Data, n.Data) {
			idx++
		}
	}
	return idx
}

// EscapeIdent escapes s for use as a CSS identifier, following the
// CSS.escape algorithm browsers implement.
func EscapeIdent(s string) string {
	if s == "" {
		return s
	}
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			sb.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1F) || r == 0x7F,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			sb.WriteByte('\\')
			sb.WriteString(strconv.FormatInt(int64(r), 16))
			sb.WriteByte(' ')
		case i == 0 && r == '-' && len(runes) == 1:
			sb.WriteString(`\-`)
		case r >= 0x80, r == '-', r == '_',
			r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
