// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/docreg/internal/api"
	"github.com/starford/docreg/internal/index"
	"github.com/starford/docreg/internal/mcpserver"
	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/registry"
	"github.com/starford/docreg/internal/sse"
	"github.com/starford/docreg/internal/watcher"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", output: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (a *application) extensions() models.Extensions {
	if len(a.config.Registry.Extensions) == 0 {
		return models.DefaultExtensions
	}
	return models.Extensions(a.config.Registry.Extensions)
}

// watch runs the filesystem watcher until ctx is done. A watcher that cannot
// start is logged; the registry keeps serving its current snapshot.
func (a *application) watch(ctx context.Context, svc *registry.Service, logger *slog.Logger) {
	cfg := watcher.Config{
		Root:       a.config.Registry.Root,
		Extensions: a.extensions(),
		Ignore:     a.config.Registry.Ignore,
		Debounce:   a.config.Watch.Debounce,
	}
	err := watcher.Watch(ctx, cfg, logger, func(ctx context.Context) error {
		_, err := svc.Refresh(ctx, "")
		return err
	})
	if err != nil {
		logger.Warn("watcher: not started", slog.String("error", err.Error()))
	}
}

func initialRefresh(ctx context.Context, svc *registry.Service, logger *slog.Logger) {
	report, err := svc.Refresh(ctx, "")
	if err != nil {
		logger.Warn("initial refresh failed, registry not ready", slog.String("error", err.Error()))
		return
	}
	if len(report.LoadErrors) > 0 {
		logger.Warn("documents rejected during load", slog.Int("count", len(report.LoadErrors)))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("root", cfg.Registry.Root),
		slog.Bool("index_enabled", cfg.Index.Enabled),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.String("refresh_policy", cfg.Registry.RefreshPolicy),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Initialize the optional SQLite mirror.
	var db *index.DB
	if cfg.Index.Enabled {
		db, err = index.Open(cfg.Index.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()
	}

	onRefresh := func(snap *registry.Snapshot, report *registry.Report, err error) {
		if err != nil {
			broker.PublishRefresh(sse.RefreshEvent{Error: err.Error()})
			return
		}
		if db != nil {
			if _, syncErr := index.Sync(db, snap.ID, snap.Graph, logger); syncErr != nil {
				logger.Warn("index sync failed", slog.String("error", syncErr.Error()))
			}
		}
		broker.PublishRefresh(sse.RefreshEvent{
			SnapshotID:  report.SnapshotID,
			Documents:   report.Stats.Documents,
			LoadErrors:  len(report.LoadErrors),
			Diagnostics: len(report.Diagnostics),
		})
	}

	svc := registry.NewService(append(cfg.Registry.Options(),
		registry.WithLogger(logger),
		registry.WithRefreshListener(onRefresh),
	)...)
	initialRefresh(ctx, svc, logger)

	routerOpts := []api.RouterOption{
		api.WithAuth(cfg.Auth.AuthEnabled(), cfg.Auth.Token),
		api.WithEvents(broker),
		api.WithExtensions(app.extensions()),
	}
	if db != nil {
		routerOpts = append(routerOpts, api.WithMirror(db))
	}
	apiRouter := api.NewRouter(svc, routerOpts...)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", api.Live)
	r.Get("/health/ready", api.Ready(svc))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			app.watch(gCtx, svc, logger)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// ServeMCP serves the registry over MCP on stdin/stdout. Logs go to stderr
// because stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	svc := registry.NewService(append(cfg.Registry.Options(), registry.WithLogger(logger))...)
	initialRefresh(ctx, svc, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Watch.Enabled {
		go app.watch(ctx, svc, logger)
	}

	logger.Info("Starting MCP server", slog.String("root", cfg.Registry.Root))
	return mcpserver.New(svc, app.version, mcpserver.WithExtensions(app.extensions())).ServeStdio()
}
