package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/domwire/pkg/live"
	"github.com/vango-dev/domwire/pkg/protocol"
	"github.com/vango-dev/domwire/pkg/session"
	"github.com/vango-dev/domwire/pkg/upload"
)

// Server serves the pages of a live.App and the websocket their runtime
// connects to.
type Server struct {
	app   *live.App
	conns *ConnectionManager
	vars  *session.MemoryStore

	config   *ServerConfig
	upgrader websocket.Upgrader

	middleware     []EventMiddleware
	httpMiddleware []func(http.Handler) http.Handler

	routerOnce sync.Once
	router     http.Handler

	metrics        *MetricsCollector
	trustedProxies *proxyMatcher

	// Parent of every connection's context
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server for app. Unset config fields take their defaults.
func New(app *live.App, config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
	}
	config.fill()

	logger := slog.Default().With("component", "server")
	if config.OnHandlerError == nil {
		config.OnHandlerError = func(err *HandlerError) {
			attrs := []any{"conn_id", err.ConnID, "func", err.Func, "url", err.URL}
			if err.IsPanic() {
				attrs = append(attrs, "panic", err.Panic, "stack", string(err.Stack))
			} else {
				attrs = append(attrs, "error", err.Err)
			}
			logger.Error("handler failed", attrs...)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		app:   app,
		conns: NewConnectionManager(config.MaxConnections, logger),
		vars: session.NewMemoryStore(
			session.WithIdleTTL(config.UserIdleTTL),
			session.WithDefaults(config.UserVars),
		),
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		metrics:        NewMetricsCollector(),
		trustedProxies: newProxyMatcher(config.TrustedProxies, logger),
		baseCtx:        baseCtx,
		cancelBase:     cancel,
		logger:         logger,
	}
	return s
}

// Use adds event middleware. Middleware runs in the order added, around
// every handler.
func (s *Server) Use(mw EventMiddleware) {
	s.middleware = append(s.middleware, mw)
}

// UseHTTP adds HTTP middleware. It must be called before the server
// handles its first request.
func (s *Server) UseHTTP(mw func(http.Handler) http.Handler) {
	s.httpMiddleware = append(s.httpMiddleware, mw)
}

// Handler returns an http.Handler for mounting in external routers.
//
// The handler dispatches based on path:
//   - /_domwire/ws → WebSocket upgrade
//   - /_domwire/client.js → client runtime
//   - /_domwire/download/* → stored files, when Uploads is set
//   - /* → registered pages
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		r := chi.NewRouter()
		r.Use(chimw.RequestID)
		r.Use(chimw.Recoverer)
		for _, mw := range s.httpMiddleware {
			r.Use(mw)
		}

		r.Get(protocol.SocketPath, s.HandleWebSocket)
		r.HandleFunc(protocol.ScriptPath, s.serveClient)
		if s.config.Uploads != nil {
			r.Handle(upload.DownloadPath+"*", upload.DownloadHandler(s.config.Uploads))
		}
		r.HandleFunc("/*", s.servePage)
		s.router = r
	})
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// servePage renders a registered route with the client runtime injected.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	route, ok := s.app.Route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	page, err := route.Render()
	if err != nil {
		s.logger.Error("render failed", "url", route.URL(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.ensureUserID(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(page))
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.ValidateConnection != nil && !s.config.ValidateConnection(r) {
		s.logger.Warn("connection refused", "client_ip", s.clientIP(r))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	uid := userID(r)
	if uid == "" {
		uid = uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	hooks := connHooks{
		validate: s.config.ValidateData,
		dispatch: s.dispatch,
	}
	if allowlist := normalizeRedirectAllowlist(s.config.AllowedRedirectHosts); allowlist != nil {
		hooks.navigate = func(rawURL string) (string, error) {
			return checkNavigation(rawURL, allowlist)
		}
	}
	c := newConnection(ws, uuid.NewString(), uid, s.config.ConnectionConfig, hooks, s.metrics, s.logger)

	if err := s.conns.Add(c); err != nil {
		s.logger.Warn("connection rejected", "client_ip", s.clientIP(r), "error", err)
		deadline := time.Now().Add(s.config.ConnectionConfig.WriteTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline)
		_ = ws.Close()
		return
	}

	s.logger.Debug("connection opened", "conn_id", c.ID(), "uid", uid, "client_ip", s.clientIP(r))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.conns.Remove(c.ID())
		if err := c.Serve(s.baseCtx); err != nil {
			s.logger.Debug("connection ended", "conn_id", c.ID(), "error", err)
		}
	}()
}

// dispatch runs one event through the middleware chain and the app. Handler
// errors and panics go to OnHandlerError; the connection stays open.
func (s *Server) dispatch(ctx context.Context, c *Connection, ev *protocol.EventMessage) {
	start := time.Now()
	defer func() {
		s.metrics.RecordEventProcessed()
		s.metrics.RecordEventLatency(time.Since(start))
	}()

	uid := c.UID()
	if s.config.TrustClientUID && ev.UID != nil && *ev.UID != "" {
		uid = *ev.UID
	}
	vars, err := s.vars.Vars(uid)
	if err != nil {
		s.logger.Warn("user vars unavailable", "uid", uid, "error", err)
	}

	info := EventInfo{ConnID: c.ID(), UID: uid, Func: ev.Func, URL: ev.URL}
	run := func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.metrics.RecordHandlerPanic()
				err = NewHandlerError(info, nil, r, debug.Stack())
			}
		}()

		found, err := s.app.Dispatch(ctx, live.Event{
			Message: ev,
			Channel: c,
			UID:     uid,
			Vars:    vars,
		})
		if !found {
			s.logger.Debug("no handler", "conn_id", c.ID(), "func", ev.Func, "url", ev.URL)
		}
		if err != nil {
			s.metrics.RecordHandlerError()
			return NewHandlerError(info, err, nil, nil)
		}
		return nil
	}

	if _, err := RunEventMiddleware(ctx, info, s.middleware, run); err != nil {
		var he *HandlerError
		if !errors.As(err, &he) {
			he = NewHandlerError(info, err, nil, nil)
		}
		s.config.OnHandlerError(he)
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.cancelBase()
	s.conns.CloseAll()

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("connections still running after shutdown timeout")
	}

	s.vars.Close()
	s.logger.Info("server shutdown complete")
	return err
}

// App returns the served app.
func (s *Server) App() *live.App {
	return s.app
}

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Vars returns the per-user variable store.
func (s *Server) Vars() *session.MemoryStore {
	return s.vars
}

// MetricsCollector returns the collector the server records into.
func (s *Server) MetricsCollector() *MetricsCollector {
	return s.metrics
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
