package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"go.uber.org/zap"
)

const (
	BlockKindUser   = "users"
	BlockKindDevice = "devices"
)

// BlocklistStore is implemented by the redis and in-memory blocklists.
type BlocklistStore interface {
	Contains(ctx context.Context, kind, value string) (bool, error)
	Add(ctx context.Context, kind, value string) error
	Remove(ctx context.Context, kind, value string) error
}

// Subject is one value to look up, e.g. {BlockKindUser, "user1"}.
type Subject struct {
	Kind  string
	Value string
}

type BlocklistChecker struct {
	store   BlocklistStore
	policy  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewBlocklistChecker(store BlocklistStore, policy string, timeout time.Duration, logger *zap.Logger) *BlocklistChecker {
	if policy != config.OnCheckErrorDeny {
		policy = config.OnCheckErrorAllow
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BlocklistChecker{
		store:   store,
		policy:  policy,
		timeout: timeout,
		logger:  logger.Named("BlocklistChecker"),
	}
}

// Check returns ErrBlocked for the first listed subject. When a lookup fails
// the configured policy decides: allow skips that subject, deny fails the
// check with ErrStoreUnavailable. Empty values are skipped.
func (b *BlocklistChecker) Check(ctx context.Context, subjects ...Subject) error {
	for _, s := range subjects {
		value := strings.TrimSpace(s.Value)
		if value == "" {
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		listed, err := b.store.Contains(cctx, s.Kind, value)
		cancel()

		if err != nil {
			metrics.BlocklistCheckErrors.WithLabelValues(b.policy).Inc()
			if b.policy == config.OnCheckErrorDeny {
				b.logger.Error("Blocklist lookup failed, denying", zap.String("kind", s.Kind), zap.Error(err))
				return fmt.Errorf("%w: blocklist lookup: %v", ierr.ErrStoreUnavailable, err)
			}
			b.logger.Warn("Blocklist lookup failed, allowing", zap.String("kind", s.Kind), zap.Error(err))
			continue
		}
		if listed {
			b.logger.Info("Blocked subject rejected", zap.String("kind", s.Kind), zap.String("value", value))
			return fmt.Errorf("%w: %s", ierr.ErrBlocked, strings.TrimSuffix(s.Kind, "s"))
		}
	}
	return nil
}

func (b *BlocklistChecker) Block(ctx context.Context, kind, value string) error {
	if err := validateBlockEntry(kind, value); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Add(cctx, kind, strings.TrimSpace(value)); err != nil {
		return storeUnavailable(err)
	}
	b.logger.Info("Added blocklist entry", zap.String("kind", kind), zap.String("value", value))
	return nil
}

func (b *BlocklistChecker) Unblock(ctx context.Context, kind, value string) error {
	if err := validateBlockEntry(kind, value); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Remove(cctx, kind, strings.TrimSpace(value)); err != nil {
		return storeUnavailable(err)
	}
	b.logger.Info("Removed blocklist entry", zap.String("kind", kind), zap.String("value", value))
	return nil
}

func validateBlockEntry(kind, value string) error {
	if kind != BlockKindUser && kind != BlockKindDevice {
		return fmt.Errorf("%w: unknown blocklist kind %q", ierr.ErrValidation, kind)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: blocklist value is required", ierr.ErrValidation)
	}
	return nil
}
