package main

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/vango-dev/domwire/internal/errors"
	"github.com/vango-dev/domwire/pkg/live"
)

func TestPageURL(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"index.html", "/"},
		{"about.html", "/about"},
		{filepath.Join("docs", "index.html"), "/docs"},
		{filepath.Join("docs", "api.HTML"), "/docs/api"},
	}
	for _, tt := range tests {
		if got := pageURL(tt.rel); got != tt.want {
			t.Errorf("pageURL(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestLoadPages(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.html":                          "<html><body>home</body></html>",
		"notes.txt":                           "ignored",
		filepath.Join("docs", "index.html"):   "<html><body>docs</body></html>",
		filepath.Join("docs", "install.html"): "<html><body>install</body></html>",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	app := live.NewApp()
	urls, err := loadPages(app, dir)
	if err != nil {
		t.Fatalf("loadPages() error=%v", err)
	}
	sort.Strings(urls)
	want := []string{"/", "/docs", "/docs/install"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("urls = %v, want %v", urls, want)
	}
	if _, ok := app.Route("/docs"); !ok {
		t.Error("/docs not registered")
	}
}

func TestLoadPagesConflict(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "docs.html"), []byte("<html></html>"), 0644)
	os.MkdirAll(filepath.Join(dir, "docs"), 0755)
	os.WriteFile(filepath.Join(dir, "docs", "index.html"), []byte("<html></html>"), 0644)

	_, err := loadPages(live.NewApp(), dir)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != "E121" {
		t.Fatalf("loadPages() error=%v, want E121", err)
	}
	if !stderrors.Is(err, live.ErrDuplicateRoute) {
		t.Error("error should wrap live.ErrDuplicateRoute")
	}
}

func TestLoadPagesMissingDir(t *testing.T) {
	_, err := loadPages(live.NewApp(), filepath.Join(t.TempDir(), "missing"))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != "E120" {
		t.Fatalf("loadPages() error=%v, want E120", err)
	}
}
