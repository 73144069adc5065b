package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vango-dev/domwire/internal/config"
	"github.com/vango-dev/domwire/internal/errors"
	"github.com/vango-dev/domwire/pkg/live"
	"github.com/vango-dev/domwire/pkg/middleware"
	"github.com/vango-dev/domwire/pkg/server"
)

type serveOptions struct {
	configPath string
	address    string
	pages      string
	dev        bool
	metrics    bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory of pages",
		Long: `Serve every .html file in the pages directory with the client
runtime attached.

Settings come from domwire.json in the current directory or a
parent. Without one, defaults are used.

Examples:
  domwire serve
  domwire serve --pages=site --addr=:3000
  domwire serve --config=deploy/domwire.json --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to domwire.json")
	cmd.Flags().StringVarP(&opts.address, "addr", "a", "", "Address to listen on (default from domwire.json)")
	cmd.Flags().StringVarP(&opts.pages, "pages", "p", "", "Pages directory (default from domwire.json)")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Disable client caching")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Expose Prometheus metrics")

	return cmd
}

// loadConfig finds the project configuration, falling back to defaults
// when no domwire.json exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.LoadFromWorkingDir()
	var e *errors.Error
	if stderrors.As(err, &e) && e.Code == "E100" {
		return config.New(), nil
	}
	return cfg, err
}

func runServe(opts serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	if opts.pages != "" {
		cfg.Pages = opts.pages
	}
	if opts.dev {
		cfg.Server.DevMode = true
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}

	logger := slog.Default().With("component", "cli")
	if cfg.Name != "" {
		logger = logger.With("project", cfg.Name)
	}

	app := live.NewApp()
	urls, err := loadPages(app, cfg.PagesPath())
	if err != nil {
		return err
	}
	success("Loaded %d pages from %s", len(urls), cfg.PagesPath())
	for _, url := range urls {
		info(url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverConfig := cfg.ServerConfig()
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		serverConfig.Uploads = store
		go cleanupLoop(ctx, store, cfg.UploadMaxAge(), logger)
	}

	srv := server.New(app, serverConfig)
	srv.Use(middleware.OpenTelemetry())

	if cfg.Metrics.Enabled {
		if err := setupMetrics(ctx, srv, cfg.Metrics, logger); err != nil {
			return err
		}
	}

	if err := srv.Run(); err != nil {
		return errors.New("E160").Wrap(err)
	}
	return nil
}

// setupMetrics registers the event and server metrics on their own
// registry and serves them either on the main server or on a separate
// listener.
func setupMetrics(ctx context.Context, srv *server.Server, mc config.MetricsConfig, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		middleware.NewServerCollector(srv),
	)
	srv.Use(middleware.Prometheus(middleware.WithRegistry(reg)))

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	if mc.Address == "" {
		srv.UseHTTP(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == mc.Path {
					handler.ServeHTTP(w, r)
					return
				}
				next.ServeHTTP(w, r)
			})
		})
		info("Metrics at " + mc.Path)
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(mc.Path, handler)
	metricsServer := &http.Server{
		Addr:              mc.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}()
	info("Metrics at " + mc.Address + mc.Path)
	return nil
}
