// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/feta/internal/api"
	"github.com/starford/feta/internal/exporter"
	"github.com/starford/feta/internal/exportservice"
	"github.com/starford/feta/internal/history"
	"github.com/starford/feta/internal/mcpserver"
	"github.com/starford/feta/internal/render"
	"github.com/starford/feta/internal/sse"
	"github.com/starford/feta/internal/vault"
	"github.com/starford/feta/internal/watch"
)

var errConfigRequired = errors.New("config is required")

// components are the collaborators shared by every command.
type components struct {
	cfg     *Config
	version string
	logger  *slog.Logger
	vault   *vault.FS
	db      *history.DB
	broker  *sse.Broker
	service *exportservice.Service
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

// setup builds the logger, vault, history database and export service.
// withBroker adds the SSE broker as the service's event publisher.
func setup(opts []Option, withBroker bool) (*components, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("export_location", cfg.Export.Location),
		slog.Duration("render_timeout", cfg.Render.Timeout),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	fs, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	db, err := history.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	c := &components{cfg: cfg, version: app.version, logger: logger, vault: fs, db: db}

	var events exportservice.Publisher
	if withBroker {
		c.broker = sse.NewBroker(2 * time.Second)
		events = c.broker
	}

	// HTML exports go through a single preview pane.
	preview := render.NewPreview(fs, render.NewMarkdown(cfg.Render.HighlightStyle), logger)
	renderer := render.NewRenderer(preview, cfg.Render.Timeout, logger)

	sink := exporter.NewSink(fs, cfg.Export.Pretty, logger)
	c.service = exportservice.New(fs, sink, db, events, exportDefaults(cfg.Export), logger,
		exporter.WithRenderer(renderer))
	return c, nil
}

func exportDefaults(c ExportConfig) exportservice.Defaults {
	return exportservice.Defaults{
		Root:                   c.RootFolder,
		RequiredTag:            c.RequiredTag,
		RequiredFrontmatterKey: c.RequiredFrontmatterKey,
		RenderHTML:             c.RenderHTML,
		Destination:            c.Location,
	}
}

// Export runs a single export and returns its result.
func Export(ctx context.Context, req exportservice.Request, opts ...Option) (*exportservice.Result, error) {
	c, err := setup(opts, false)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.service.Export(ctx, req)
}

// Watch exports once, then re-exports whenever notes change until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Watch(ctx context.Context, opts ...Option) error {
	c, err := setup(opts, false)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := c.service.Export(ctx, exportservice.Request{}); err != nil {
		c.logger.Warn("initial export failed", slog.String("error", err.Error()))
	}
	return watch.Watch(ctx, c.vault.Root(), c.cfg.Watch.Debounce, c.logger, nil, reexport(c.service))
}

// ServeMCP serves the MCP tools on stdio until the client disconnects.
func ServeMCP(_ context.Context, opts ...Option) error {
	c, err := setup(opts, false)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.service, c.version).ServeStdio()
}

func reexport(svc *exportservice.Service) watch.Trigger {
	return func(ctx context.Context) error {
		_, err := svc.Export(ctx, exportservice.Request{})
		return err
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, err := setup(opts, true)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger
	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return watch.Watch(gCtx, c.vault.Root(), cfg.Watch.Debounce, logger,
				c.broker.PublishNoteEvent, reexport(c.service))
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
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Close the broker first so open SSE streams return.
		c.broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
