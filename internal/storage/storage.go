package storage

import (
	"context"
	"fmt"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/storage/boltstore"
	"github.com/makkenzo/commentgate-api/internal/storage/postgres"
	"go.uber.org/zap"
)

// Stores is the repository set for the configured driver.
type Stores struct {
	Licenses license.Repository
	Quotas   quota.Repository
	APIKeys  apikey.Repository
	Ping     func(ctx context.Context) error
	Close    func()
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverBBolt:
		db, err := boltstore.Open(cfg.Storage.BoltPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt store: %w", err)
		}
		return &Stores{
			Licenses: db.Licenses(),
			Quotas:   db.Quotas(),
			APIKeys:  db.APIKeys(),
			Ping:     func(context.Context) error { return db.Ping() },
			Close:    func() { _ = db.Close() },
		}, nil

	case config.StorageDriverPostgres:
		pool, err := postgres.NewPgxPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
			}
		}
		return &Stores{
			Licenses: postgres.NewLicenseRepository(pool, logger),
			Quotas:   postgres.NewQuotaRepository(pool, logger),
			APIKeys:  postgres.NewAPIKeyRepository(pool, logger),
			Ping:     pool.Ping,
			Close:    pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
