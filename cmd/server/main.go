// Skincare Picker - product selection and routine assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/skincare-picker/internal/api"
	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/chat"
	"github.com/ashureev/skincare-picker/internal/config"
	"github.com/ashureev/skincare-picker/internal/identity"
	"github.com/ashureev/skincare-picker/internal/live"
	"github.com/ashureev/skincare-picker/internal/middleware"
	"github.com/ashureev/skincare-picker/internal/session"
	"github.com/ashureev/skincare-picker/internal/store"
	"github.com/ashureev/skincare-picker/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	source, err := catalog.NewSource(cfg.Catalog.URL, cfg.Catalog.Path, cfg.Catalog.Timeout)
	if err != nil {
		slog.Error("Failed to initialize catalog source", "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog source ready", "url", cfg.Catalog.URL, "path", cfg.Catalog.Path)

	completer := newCompleter(cfg)

	transcript, err := chat.NewTranscriptLogger(chat.TranscriptConfig{
		Enabled:   cfg.ChatLog.Enabled,
		Dir:       cfg.ChatLog.Dir,
		QueueSize: cfg.ChatLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize chat transcript logger", "error", err)
		os.Exit(1)
	}
	defer transcript.Close()

	// Initialize services.
	hub := live.NewHub()
	sessions := session.NewManager(session.Config{
		Repo:        repo,
		Loader:      catalog.NewLoader(source),
		Completer:   completer,
		ChatTimeout: cfg.Assistant.Timeout,
		Transcript:  transcript,
		Notifier:    hub,
	})

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	// Initialize handlers.
	baseHandler := api.NewHandler(sessions)
	healthHandler := api.NewHealthHandler(repo, sessions, 5*time.Second)
	pageHandler := api.NewPageHandler(baseHandler, web.PageTemplate(), cfg.AssistantEnabled())
	catalogHandler := api.NewCatalogHandler(baseHandler)
	selectionHandler := api.NewSelectionHandler(baseHandler)
	chatHandler := api.NewChatHandler(baseHandler, limiter, cfg.AssistantEnabled())
	wsHandler := live.NewHandler(hub, sessions.Touch, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/static/*", web.StaticHandler())

	// Everything else carries an anonymous identity.
	r.Group(func(r chi.Router) {
		origins := []string{"*"}
		if cfg.FrontendURL != "" {
			origins = []string{cfg.FrontendURL}
		}
		r.Use(middleware.CORS(origins))
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		pageHandler.RegisterRoutes(r)
		catalogHandler.RegisterRoutes(r)
		selectionHandler.RegisterRoutes(r)
		chatHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/session", wsHandler.ServeHTTP)
	})

	// Create server.
	// Live connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartTTLWorker(ctx, sessions, cfg.SessionTTL, 0, hub.CloseUser)

	if cfg.Catalog.URL == "" && cfg.Catalog.Watch {
		err := catalog.Watch(ctx, cfg.Catalog.Path, func() {
			reloadCtx, cancel := context.WithTimeout(ctx, cfg.Assistant.Timeout)
			defer cancel()
			sessions.ReloadCatalogs(reloadCtx)
		})
		if err != nil {
			slog.Warn("Catalog file watching disabled", "path", cfg.Catalog.Path, "error", err)
		}
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newCompleter picks the assistant route: the proxy when configured, a
// direct OpenAI-compatible API when a key is set, otherwise none.
func newCompleter(cfg *config.Config) chat.Completer {
	switch {
	case cfg.Assistant.ProxyURL != "":
		slog.Info("Assistant enabled via proxy", "url", cfg.Assistant.ProxyURL)
		return &chat.ProxyCompleter{
			URL:    cfg.Assistant.ProxyURL,
			Client: &http.Client{Timeout: cfg.Assistant.Timeout},
		}
	case cfg.Assistant.APIKey != "":
		slog.Info("Assistant enabled via OpenAI API", "model", cfg.Assistant.Model, "base_url", cfg.Assistant.BaseURL)
		return chat.NewOpenAICompleter(chat.OpenAIConfig{
			APIKey:    cfg.Assistant.APIKey,
			BaseURL:   cfg.Assistant.BaseURL,
			Model:     cfg.Assistant.Model,
			MaxTokens: cfg.Assistant.MaxTokens,
		})
	default:
		slog.Info("Assistant disabled (PROXY_URL and OPENAI_API_KEY not set)")
		return chat.Disabled()
	}
}
