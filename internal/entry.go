// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/fleeting/internal/api"
	"github.com/starford/fleeting/internal/mcpserver"
	"github.com/starford/fleeting/internal/metrics"
	"github.com/starford/fleeting/internal/noteservice"
	"github.com/starford/fleeting/internal/scanner"
	"github.com/starford/fleeting/internal/search"
	"github.com/starford/fleeting/internal/sse"
	"github.com/starford/fleeting/internal/sweeper"
	"github.com/starford/fleeting/internal/watcher"
)

// Run starts the HTTP server together with the watcher and the expire sweeper.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_root", cfg.Notes.Root),
		slog.String("ttl", cfg.Notes.TTL.String()),
		slog.String("search_path", cfg.Search.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m := metrics.New()
	broker := sse.NewBroker(sse.WithIndexThrottle(2 * time.Second))
	defer broker.Close()

	svc, closeDB, err := newService(cfg, logger,
		noteservice.WithMetrics(m),
		noteservice.WithNotifier(broker.PublishNoteEvent))
	if err != nil {
		return err
	}
	defer closeDB()

	// Initial pass: migrates, rebuilds or archives whatever changed while stopped.
	if sum, err := svc.Pass(ctx); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial reconcile",
			slog.String("path", sum.Path),
			slog.Int("active", sum.Active),
			slog.Int("archived", sum.Inactive))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	pass := func(ctx context.Context) error {
		_, err := svc.Pass(ctx)
		return err
	}

	if cfg.Watch.Enabled {
		g.Go(func() error {
			dirs := []string{
				filepath.Join(svc.Root(), scanner.NotesDir),
				filepath.Join(svc.Root(), scanner.ArchiveDir),
			}
			return watcher.Watch(gCtx, dirs, cfg.Watch.Debounce, logger, func(ctx context.Context) {
				if err := pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("watch reconcile failed", slog.String("error", err.Error()))
				}
			})
		})
	}

	g.Go(func() error {
		return sweeper.Run(gCtx, cfg.Expire.Interval, logger, pass)
	})

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

// errShutdown cancels the group so the watcher and sweeper stop with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the note tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	slog.SetDefault(logger)

	svc, closeDB, err := newService(app.config, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := svc.Pass(ctx); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting", slog.String("notes_root", svc.Root()))
	return mcpserver.New(svc, app.version).ServeStdio()
}

// Maintenance runs a single reconcile pass, or a forced rebuild when rebuild
// is set, and writes the resulting summary as JSON to out.
func Maintenance(ctx context.Context, rebuild bool, out io.Writer, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	svc, closeDB, err := newService(app.config, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	var sum noteservice.Summary
	if rebuild {
		sum, err = svc.Rebuild(ctx)
	} else {
		sum, err = svc.Pass(ctx)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// newService builds the note service for cfg, opening the search mirror
// when one is configured. The returned func closes it.
func newService(cfg *Config, logger *slog.Logger, extra ...noteservice.Option) (*noteservice.Service, func(), error) {
	root, err := noteservice.EnsureLayout(cfg.Notes.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare notes root: %w", err)
	}

	opts := []noteservice.Option{
		noteservice.WithTTL(cfg.Notes.TTL),
		noteservice.WithPreviewLength(cfg.Notes.PreviewLength),
		noteservice.WithDropMissingArchived(cfg.Notes.GCMissingArchived),
		noteservice.WithLogger(logger),
	}

	closeDB := func() {}
	if cfg.Search.Enabled() {
		db, err := search.Open(cfg.Search.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init search: %w", err)
		}
		closeDB = func() { _ = db.Close() }
		opts = append(opts, noteservice.WithIndexer(db))
	}

	svc, err := noteservice.New(root, append(opts, extra...)...)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("init notes: %w", err)
	}
	return svc, closeDB, nil
}
