package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixelforge/imagegen-backend/config"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
	"github.com/pixelforge/imagegen-backend/internal/storage/postgres"
)

// OpenDB connects to Postgres and applies pending schema migrations
func OpenDB(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*postgres.DB, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	applied, err := postgres.Migrate(ctx, db.SQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	for _, v := range applied {
		log.Info("applied migration", "version", v)
	}

	return db, nil
}

// OpenRedis connects the change feed client
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
