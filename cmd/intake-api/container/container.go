package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/db"
	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/queue"
	"github.com/inkfold/prepress/common/repository"
)

// Container holds all initialized dependencies (singleton pattern)
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.DB
	Redis  *redis.Client
	Queue  *queue.StreamQueue

	// Repositories
	Shops      *repository.ShopRepository
	Uploads    *repository.UploadRepository
	Items      *repository.ItemRepository
	ExportJobs *repository.ExportJobRepository
}

// NewContainer initializes all dependencies once
func NewContainer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	database, err := db.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Container{
		Config:     cfg,
		Logger:     log,
		DB:         database,
		Redis:      redisClient,
		Queue:      queue.New(redisClient, log),
		Shops:      repository.NewShopRepository(database),
		Uploads:    repository.NewUploadRepository(database),
		Items:      repository.NewItemRepository(database),
		ExportJobs: repository.NewExportJobRepository(database),
	}, nil
}

// Shutdown releases held connections
func (c *Container) Shutdown(ctx context.Context) {
	if err := c.Redis.Close(); err != nil {
		c.Logger.Error("failed to close redis client", "error", err)
	}
	c.DB.Close()
}
