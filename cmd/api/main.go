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

	"github.com/joho/godotenv"

	"github.com/zhouzirui/solace/backend/internal/config"
	"github.com/zhouzirui/solace/backend/internal/events"
	"github.com/zhouzirui/solace/backend/internal/handler"
	"github.com/zhouzirui/solace/backend/internal/middleware"
	"github.com/zhouzirui/solace/backend/internal/policy"
	"github.com/zhouzirui/solace/backend/internal/service/ai"
	"github.com/zhouzirui/solace/backend/internal/service/chat"
	"github.com/zhouzirui/solace/backend/internal/service/emotion"
	"github.com/zhouzirui/solace/backend/internal/service/session"
	"github.com/zhouzirui/solace/backend/internal/service/wellness"
	"github.com/zhouzirui/solace/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", "reason", envErr)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()
	logger.Info("store ready", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return err
	}

	verifier, err := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, logger)
	if err != nil {
		return err
	}

	dispatcher := newDispatcher(cfg.Events, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Events.Timeout)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Warn("event queue not drained", "error", err)
		}
	}()

	analyzer, generator := newPipeline(ctx, cfg.AI, logger)

	registry := session.NewRegistry(st, engine, dispatcher, logger)
	chatSvc := chat.NewService(registry, st, analyzer, generator, dispatcher, chat.Config{
		PipelineTimeout: cfg.Chat.PipelineTimeout,
		MemoryWindow:    cfg.Chat.MemoryWindow,
	}, logger)
	wellnessSvc := wellness.NewService(st, dispatcher, logger)

	router := handler.NewRouter(handler.Services{
		Chat:     chatSvc,
		Wellness: wellnessSvc,
		Auth:     verifier,
	})

	return startServer(ctx, cfg.Server, router, logger)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == config.StoreDriverMemory {
		return store.NewMemoryStore(), nil
	}
	sqlite, err := store.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return sqlite, nil
}

func newDispatcher(cfg config.EventsConfig, logger *slog.Logger) *events.Dispatcher {
	var sender events.Sender = events.NopSender{}
	if cfg.Enabled() {
		httpSender, err := events.NewHTTPSender(cfg.BaseURL, cfg.Key, cfg.Timeout)
		if err != nil {
			logger.Warn("event bus misconfigured, events disabled", "error", err)
		} else {
			sender = httpSender
			logger.Info("event bus enabled", "baseURL", cfg.BaseURL)
		}
	} else {
		logger.Info("event bus not configured, events are dropped")
	}

	return events.NewDispatcher(sender, events.DispatcherConfig{
		QueueSize:   cfg.QueueSize,
		SendTimeout: cfg.Timeout,
	}, logger)
}

// newPipeline builds the analyzer and generator. Both are nil when no model is
// configured, in which case message endpoints answer 503.
func newPipeline(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (chat.Analyzer, chat.Generator) {
	if !cfg.Enabled() {
		logger.Warn("Ark credentials not configured, chat replies disabled")
		return nil, nil
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to create chat model, chat replies disabled", "error", err)
		return nil, nil
	}

	analyzer, err := emotion.NewService(ctx, chatModel, emotion.Config{Timeout: cfg.AnalysisTimeout}, logger)
	if err != nil {
		logger.Warn("failed to initialize analyzer, chat replies disabled", "error", err)
		return nil, nil
	}

	generator, err := ai.NewService(ctx, chatModel, ai.Config{
		Timeout:      cfg.ResponseTimeout,
		HistoryLimit: cfg.HistoryLimit,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize generator, chat replies disabled", "error", err)
		return nil, nil
	}

	logger.Info("AI pipeline initialized", "model", cfg.Model)
	return analyzer, generator
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	logger.Info("solace backend listening", "addr", serverCfg.Addr)
	return runServer(ctx, srv, serverCfg.ShutdownTimeout)
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
