package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/userhub/internal/auth"
	"github.com/hongminglow/userhub/internal/config"
	"github.com/hongminglow/userhub/internal/events"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/server"
	"github.com/hongminglow/userhub/internal/storage"
	"github.com/hongminglow/userhub/internal/storage/memory"
	"github.com/hongminglow/userhub/internal/storage/postgres"
	"github.com/hongminglow/userhub/internal/users"
)

func main() {
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	ctx := context.Background()
	if !envLoaded {
		logger.Info(ctx, "no .env file found; relying on existing environment")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "init storage", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	publisher := openPublisher(ctx, cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn(ctx, "close event publisher", "error", err)
		}
	}()

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	svc := users.NewService(store, hasher, publisher, logger)

	srv := server.New(cfg, server.Deps{
		Users:  svc,
		Tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		DB:     store,
		Log:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error(ctx, "http server error", "error", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error(ctx, "graceful shutdown error", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.UserStore, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return memory.NewStore(), nil
	}
	return postgres.NewUserStore(ctx, cfg.DatabaseURL, postgres.Options{
		MaxConns:         cfg.Database.MaxConns,
		AcquireTimeout:   cfg.Database.AcquireTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	})
}

// openPublisher falls back to a no-op publisher when the broker is not
// configured or still unreachable after the startup retries. Once connected,
// the publisher re-dials on its own after a dropped connection.
func openPublisher(ctx context.Context, cfg config.Config, logger logging.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Info(ctx, "RABBITMQ_URL not set; user events are not published")
		return events.NopPublisher{}
	}
	p, err := events.NewAMQPPublisher(ctx, cfg.RabbitMQURL, cfg.EventExchange, logger)
	if err != nil {
		logger.Error(ctx, "event publisher disabled until restart", "url", config.Redact(cfg.RabbitMQURL), "error", err)
		return events.NopPublisher{}
	}
	return p
}
