// cmd/chat-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"enrollment-chat/internal/common/config"
	"enrollment-chat/internal/common/database"
	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/common/observability"
	"enrollment-chat/internal/enrollment/conversation"
	"enrollment-chat/internal/enrollment/dataset"
	"enrollment-chat/internal/enrollment/schema"
	"enrollment-chat/internal/llm"
	"enrollment-chat/internal/server"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting enrollment chat server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Conversation state store ---
	var store conversation.Store
	switch cfg.Conversation.StoreBackend {
	case "redis":
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")

		store = conversation.NewRedisStore(rdb.Client, cfg.Conversation.RetentionTTLDuration())
	default:
		store = conversation.NewMemoryStore(cfg.Conversation.RetentionTTLDuration())
	}

	// --- Domain, dataset cache, LLM client ---
	domain := schema.NewValueDomain(cfg.Conversation.ExtraTerms...)

	loader := dataset.NewPostgresLoader(
		pg.DB,
		cfg.Dataset.Table,
		time.Duration(cfg.Dataset.LoadTimeout)*time.Millisecond,
	)
	cache := dataset.NewCache(loader, cfg.Dataset.CacheTTLDuration(), log)

	// Warm the snapshot so the first confirmed query doesn't pay the load.
	if _, err := cache.GetOrReload(ctx); err != nil {
		zapLog.Warn("initial dataset load failed, will retry on demand", zap.Error(err))
	}

	llmClient := llm.NewClient(&llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		ExtractTimeout: cfg.LLM.ExtractTimeoutDuration(),
		ReplyTimeout:   cfg.LLM.ReplyTimeoutDuration(),
		MaxRetries:     cfg.LLM.MaxRetries,
	}, log)

	svc := conversation.NewService(domain, llmClient, llmClient, cache, store, log, obs)

	// --- HTTP server ---
	handler := server.New(svc, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("server shutdown error", zap.Error(err))
	}

	zapLog.Info("Enrollment chat server stopped")
}
