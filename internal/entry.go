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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notetaker/internal/api"
	"github.com/starford/notetaker/internal/graphql"
	"github.com/starford/notetaker/internal/mcpserver"
	"github.com/starford/notetaker/internal/noteservice"
	"github.com/starford/notetaker/internal/pubsub"
	"github.com/starford/notetaker/internal/session"
	"github.com/starford/notetaker/internal/store"
	"github.com/starford/notetaker/internal/tui"
	"github.com/starford/notetaker/internal/viewmodel"
)

var errConfigRequired = errors.New("config is required")

const guestName = "guest"

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// tokenSource builds the client's credentials from the auth section.
func tokenSource(cfg AuthConfig) (session.TokenSource, *session.FileSource, error) {
	if !cfg.AuthEnabled() {
		return session.Static(""), nil, nil
	}
	if cfg.TokenFile == "" {
		return session.Static(cfg.Token), nil, nil
	}
	fs, err := session.NewFileSource(cfg.TokenFile)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs, nil
}

// displayName reads the username claim of the session token.
func displayName(ts session.TokenSource) string {
	tok := ts.Token()
	if tok == "" {
		return guestName
	}
	id, err := session.Identify(tok)
	if err != nil || id.Username == "" {
		return guestName
	}
	return id.Username
}

func newClient(cfg *Config, ts session.TokenSource, logger *slog.Logger) *graphql.Client {
	return graphql.New(cfg.Backend.Endpoint, cfg.Backend.RealtimeURL(),
		graphql.WithTimeout(cfg.Backend.Timeout),
		graphql.WithTokenSource(ts),
		graphql.WithLogger(logger),
	)
}

// Run starts the terminal UI with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// The UI owns stdout, so logs go to a file.
	logFile, err := os.OpenFile(cfg.App.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logger := newLogger(logFile, cfg.App.LogLevel)
	slog.SetDefault(logger)

	ts, fileSource, err := tokenSource(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("endpoint", cfg.Backend.Endpoint),
		slog.String("realtime_endpoint", cfg.Backend.RealtimeURL()),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("version", app.version))

	vm := viewmodel.New(newClient(cfg, ts, logger), viewmodel.WithLogger(logger))
	defer vm.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	uiCtx, uiDone := context.WithCancel(gCtx)

	program := tea.NewProgram(
		tui.New(vm, displayName(ts), tui.WithOpTimeout(cfg.Backend.Timeout)),
		tea.WithAltScreen(),
		tea.WithContext(uiCtx),
	)

	g.Go(func() error {
		defer uiDone()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("terminal UI: %w", err)
		}
		return nil
	})

	if fileSource != nil {
		g.Go(func() error {
			return fileSource.Watch(uiCtx, logger, func(string) {
				logger.Info("session token reloaded")
			})
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// RunBackend starts the local notes backend.
func RunBackend(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.Server.HTTP.Address()),
		slog.String("sqlite_path", cfg.Server.SQLite.Path),
		slog.String("auth_mode", cfg.Server.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.Server.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	hub := pubsub.NewHub(64, logger)
	svc := noteservice.NewService(db, hub, noteservice.WithMaxNoteLength(cfg.Server.MaxNoteLength))
	auth := api.NewAuthenticator(cfg.Server.Auth.Mode, []byte(cfg.Server.Auth.Secret))
	apiRouter := api.NewRouter(api.NewHandler(svc, logger), api.NewRealtime(hub, auth, logger), auth)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.Server.HTTP.Address()))
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

		// Realtime connections are hijacked and not covered by Shutdown;
		// closing the hub closes them.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully",
		slog.Int64("dropped_changes", hub.Dropped()))
	return nil
}

// RunMCP serves the notes API as MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Stdout carries the MCP protocol.
	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	ts, fileSource, err := tokenSource(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	srv := mcpserver.New(newClient(cfg, ts, logger), app.version)

	g, gCtx := errgroup.WithContext(ctx)
	mcpCtx, mcpDone := context.WithCancel(gCtx)

	g.Go(func() error {
		defer mcpDone()
		logger.Info("Starting MCP server on stdio")
		return srv.ServeStdio()
	})

	if fileSource != nil {
		g.Go(func() error {
			return fileSource.Watch(mcpCtx, logger, func(string) {
				logger.Info("session token reloaded")
			})
		})
	}

	return g.Wait()
}

// MintToken issues a development token the local backend accepts.
func MintToken(cfg *Config, username string, ttl time.Duration) (string, error) {
	if cfg.Server.Auth.Mode != api.AuthModeJWT {
		return "", fmt.Errorf("server auth mode is %q, tokens need %q", cfg.Server.Auth.Mode, api.AuthModeJWT)
	}
	return session.Mint([]byte(cfg.Server.Auth.Secret), username, ttl)
}
