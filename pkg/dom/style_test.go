package dom

import "testing"

func TestStyleProperty(t *testing.T) {
	doc := mustParse(t, `<div id="d" style="color: red; background: url('a;b.png'); WIDTH:10px"></div>`)
	el := doc.ElementByID("d")

	tests := []struct {
		prop string
		want string
		ok   bool
	}{
		{"color", "red", true},
		{"background", "url('a;b.png')", true},
		{"width", "10px", true},
		{"height", "", false},
	}
	for _, tc := range tests {
		got, ok := el.StyleProperty(tc.prop)
		if got != tc.want || ok != tc.ok {
			t.Errorf("StyleProperty(%q) = %q, %v; want %q, %v", tc.prop, got, ok, tc.want, tc.ok)
		}
	}

	el.SetStyleProperty("color", "blue")
	el.SetStyleProperty("height", "5px")
	want := "color: blue; background: url('a;b.png'); width: 10px; height: 5px;"
	if got, _ := el.Attr("style"); got != want {
		t.Errorf("style = %q, want %q", got, want)
	}

	bare := NewElement("p")
	if _, ok := bare.StyleProperty("color"); ok {
		t.Error("StyleProperty() on element without style ok=true")
	}
	bare.SetStyleProperty("color", "green")
	if got, _ := bare.Attr("style"); got != "color: green;" {
		t.Errorf("style = %q", got)
	}
}
