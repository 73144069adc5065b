package main

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vango-dev/domwire/internal/errors"
	"github.com/vango-dev/domwire/pkg/live"
)

// loadPages registers every .html file under dir with app and returns the
// registered URLs. pages/index.html is served at "/", pages/docs/index.html
// at "/docs" and pages/docs/api.html at "/docs/api".
func loadPages(app *live.App, dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.New("E120").Wrap(err).
			WithSuggestion("Create the directory or set \"pages\" in domwire.json")
	}
	if !info.IsDir() {
		return nil, errors.New("E120").WithDetail(dir + " is not a directory")
	}

	var urls []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		html, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		url := pageURL(rel)
		if _, err := app.AddPage(url, string(html)); err != nil {
			return errors.New("E121").Wrap(err).WithDetail(rel + " maps to " + url)
		}
		urls = append(urls, url)
		return nil
	})
	if err != nil {
		return nil, errors.FromError(err, "E120")
	}
	return urls, nil
}

// pageURL maps a path relative to the pages directory to a route URL.
func pageURL(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	if rel == "index" {
		return "/"
	}
	rel = strings.TrimSuffix(rel, "/index")
	return "/" + rel
}
