package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/inkfold/prepress/cmd/export-worker/worker"
	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/queue"
	"github.com/inkfold/prepress/common/repository"
	"github.com/inkfold/prepress/common/server"
	"github.com/inkfold/prepress/common/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("export-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("export-worker starting", "environment", cfg.Service.Environment)

	database, err := db.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to ping Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis", "addr", cfg.Redis.Addr)

	router, err := storage.NewRouter(cfg.Storage, log)
	if err != nil {
		log.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	q := queue.New(redisClient, log)
	w := worker.New(
		cfg,
		repository.NewShopRepository(database),
		repository.NewUploadRepository(database),
		repository.NewItemRepository(database),
		repository.NewExportJobRepository(database),
		router,
		q,
		log,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- q.Consume(ctx, queue.Options{
			Stream:            cfg.Export.Stream,
			Group:             cfg.Export.Group,
			Concurrency:       cfg.Export.Concurrency,
			MaxDeliveries:     cfg.Export.MaxDeliveries,
			RetryInitial:      cfg.Export.RetryInitial,
			VisibilityTimeout: cfg.Export.VisibilityTimeout,
		}, w.Handle)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.HealthHandler(database.Health, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))
	go func() {
		if err := server.New("export-worker health", cfg.Service.Port, mux, log).Start(ctx); err != nil {
			log.Error("health server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Error("consumer failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}

	log.Info("export-worker shutting down gracefully")
}
