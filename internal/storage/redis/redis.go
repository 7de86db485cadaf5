package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to redis with bounded dial, read and write timeouts.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, opTimeout time.Duration, logger *zap.Logger) (*redis.Client, error) {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}
