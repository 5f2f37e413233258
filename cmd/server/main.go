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

	"github.com/mattn/go-isatty"

	"github.com/pauljones0/x-parser/internal/ai"
	"github.com/pauljones0/x-parser/internal/api"
	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/dedup"
	"github.com/pauljones0/x-parser/internal/monitor"
	"github.com/pauljones0/x-parser/internal/notifier"
	"github.com/pauljones0/x-parser/internal/processor"
	"github.com/pauljones0/x-parser/internal/scraper"
	"github.com/pauljones0/x-parser/internal/session"
	"github.com/pauljones0/x-parser/internal/storage"
	"github.com/pauljones0/x-parser/internal/xclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	slog.Info("Starting X parser server...", "storage", cfg.StorageBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	prompts, err := config.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		slog.Error("Critical error loading prompts", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("Critical error opening storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	xc, err := xclient.New(xclient.Options{
		Timeout:        cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RateLimitDelay: cfg.RateLimitDelay,
	})
	if err != nil {
		slog.Error("Critical error creating X client", "error", err)
		os.Exit(1)
	}
	pages := scraper.New(scraper.LoadConfig(os.Getenv("SELECTORS_CONFIG_PATH")), cfg.RequestTimeout)

	llm, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, prompts, cfg.LLMTimeout)
	if err != nil {
		slog.Warn("AI analysis disabled", "error", err)
		llm = nil
	}

	seen, err := dedup.Open(ctx, cfg.RedisAddr, 0)
	if err != nil {
		slog.Warn("Seen-set disabled, every timeline tweet will be checked", "error", err)
		seen = nil
	}
	defer seen.Close()

	chat := notifier.New(cfg.ChatWebhookURL, cfg.MessageFormat, cfg.Language)

	p := processor.New(processor.Deps{
		Store:    store,
		Source:   xc,
		Pages:    pages,
		Analyzer: llm,
		Seen:     seen,
		Notifier: chat,
	}, cfg)

	mon := monitor.New(p, cfg.Monitor, initialCredentials(cfg))
	if cfg.Monitor.AutoStart {
		if err := mon.Start(ctx); err != nil {
			slog.Warn("Monitor autostart skipped", "error", err)
		}
	}
	defer mon.Stop()

	h := api.NewHandler(ctx, store, p, mon, chat, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(h),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down gracefully...")
		mon.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

// setupLogger writes human-readable logs to a terminal and JSON otherwise.
func setupLogger(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// initialCredentials prefers cookies from the environment over a saved
// browser session.
func initialCredentials(cfg *config.Config) xclient.Credentials {
	creds := xclient.Credentials{AuthToken: cfg.TwitterAuthToken, CSRFToken: cfg.TwitterCSRFToken}
	if creds.Valid() {
		return creds
	}
	saved, err := session.LoadCredentials(cfg.SessionPath)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			slog.Warn("Failed to load saved session", "path", cfg.SessionPath, "error", err)
		}
		return xclient.Credentials{}
	}
	slog.Info("Loaded saved session", "path", cfg.SessionPath)
	return saved
}
