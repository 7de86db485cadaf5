package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const blocklistKeyPrefix = "commentgate:blocklist:"

// Blocklist stores blocked subjects as one redis set per kind.
type Blocklist struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewBlocklist(client redis.UniversalClient, logger *zap.Logger) *Blocklist {
	return &Blocklist{
		client: client,
		logger: logger.Named("RedisBlocklist"),
	}
}

func blocklistKey(kind string) string {
	return blocklistKeyPrefix + kind
}

func (b *Blocklist) Contains(ctx context.Context, kind, value string) (bool, error) {
	ok, err := b.client.SIsMember(ctx, blocklistKey(kind), value).Result()
	if err != nil {
		return false, fmt.Errorf("redis blocklist lookup: %w", err)
	}
	return ok, nil
}

func (b *Blocklist) Add(ctx context.Context, kind, value string) error {
	if err := b.client.SAdd(ctx, blocklistKey(kind), value).Err(); err != nil {
		b.logger.Error("Failed to add blocklist entry", zap.String("kind", kind), zap.Error(err))
		return fmt.Errorf("redis blocklist add: %w", err)
	}
	b.logger.Info("Blocklist entry added", zap.String("kind", kind), zap.String("value", value))
	return nil
}

func (b *Blocklist) Remove(ctx context.Context, kind, value string) error {
	if err := b.client.SRem(ctx, blocklistKey(kind), value).Err(); err != nil {
		b.logger.Error("Failed to remove blocklist entry", zap.String("kind", kind), zap.Error(err))
		return fmt.Errorf("redis blocklist remove: %w", err)
	}
	b.logger.Info("Blocklist entry removed", zap.String("kind", kind), zap.String("value", value))
	return nil
}
