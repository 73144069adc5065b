package live

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/vango-dev/domwire/pkg/dom"
	"github.com/vango-dev/domwire/pkg/protocol"
)

// Handler handles one event from the browser.
type Handler func(p *Page, args Args) error

// App is the registry of pages and handlers. Handlers registered on the App
// serve every route; a route's own handlers take precedence.
type App struct {
	mu       sync.RWMutex
	routes   map[string]*Route
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewApp creates an empty registry.
func NewApp() *App {
	return &App{
		routes:   make(map[string]*Route),
		handlers: make(map[string]Handler),
		logger:   slog.Default().With("component", "live"),
	}
}

// Route is a page served at a URL together with its handlers.
type Route struct {
	app  *App
	url  string
	html string

	handlers map[string]Handler // guarded by app.mu
}

// URL returns the route's path.
func (r *Route) URL() string { return r.url }

// AddPage registers html to be served at url.
func (a *App) AddPage(url, html string) (*Route, error) {
	if url == "" || !strings.HasPrefix(url, "/") || strings.HasPrefix(url, protocol.PathPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoute, url)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.routes[url]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, url)
	}
	r := &Route{app: a, url: url, html: html, handlers: make(map[string]Handler)}
	a.routes[url] = r
	return r, nil
}

// AddDetachedPage registers a page built with NewPage.
func (a *App) AddDetachedPage(url string, p *Page) (*Route, error) {
	return a.AddPage(url, p.HTML())
}

// Route returns the route registered at url.
func (a *App) Route(url string) (*Route, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.routes[url]
	return r, ok
}

// Routes returns every route sorted by URL.
func (a *App) Routes() []*Route {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Route, 0, len(a.routes))
	for _, r := range a.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].url < out[j].url })
	return out
}

// Handle registers an app-wide handler.
func (a *App) Handle(name string, h Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return register(a.handlers, name, h)
}

// Handle registers a handler for this route only.
func (r *Route) Handle(name string, h Handler) error {
	r.app.mu.Lock()
	defer r.app.mu.Unlock()
	return register(r.handlers, name, h)
}

func register(m map[string]Handler, name string, h Handler) error {
	if !validHandlerName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidHandlerName, name)
	}
	if h == nil {
		return fmt.Errorf("live: nil handler for %q", name)
	}
	if _, ok := m[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, name)
	}
	m[name] = h
	return nil
}

// Lookup finds the handler for name as seen from the page at url: the
// route's handlers first, then the app-wide ones.
func (a *App) Lookup(url, name string) (Handler, *Route, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r := a.routes[url]
	if r != nil {
		if h, ok := r.handlers[name]; ok {
			return h, r, true
		}
	}
	h, ok := a.handlers[name]
	return h, r, ok
}

// handlerNames returns the names callable from the page at url.
func (a *App) handlerNames(r *Route) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	seen := make(map[string]bool, len(a.handlers)+len(r.handlers))
	for name := range a.handlers {
		seen[name] = true
	}
	for name := range r.handlers {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render returns the route's HTML with the client runtime and one stub per
// callable handler added to the head.
func (r *Route) Render() (string, error) {
	doc, err := dom.Parse(r.html)
	if err != nil {
		return "", err
	}
	head := doc.Head()
	if head == nil {
		return "", fmt.Errorf("live: %s: document has no head", r.url)
	}

	var sb strings.Builder
	sb.WriteString(`<script src="` + protocol.ScriptPath + `"></script>`)
	if names := r.app.handlerNames(r); len(names) > 0 {
		sb.WriteString("<script>")
		for _, name := range names {
			sb.WriteString(stub(name))
		}
		sb.WriteString("</script>")
	}
	if err := head.AppendHTML(sb.String()); err != nil {
		return "", err
	}
	return doc.String(), nil
}

// stub is the browser function that forwards a call to the server.
func stub(name string) string {
	return "function " + name + "(...args) { _toPy('" + name + "', ...args) }\n"
}

var identRe = regexp.MustCompile(`^[A-Za-z$][A-Za-z0-9_$]*$`)

var reservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "let": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true, "with": true, "yield": true,
}

// validHandlerName reports whether name can be used as a global browser
// function. Names starting with an underscore belong to the client runtime.
func validHandlerName(name string) bool {
	return identRe.MatchString(name) && !reservedWords[name]
}
