package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/util"
	"go.uber.org/zap"
)

type APIKeyService struct {
	repo   apikey.Repository
	logger *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		logger: logger.Named("APIKeyService"),
	}
}

func (s *APIKeyService) CreateAPIKey(ctx context.Context, description, scope string) (*dto.CreateAPIKeyResponse, error) {
	if scope == "" {
		scope = apikey.ScopeProvision
	}
	s.logger.Info("Generating new API key", zap.String("description", description), zap.String("scope", scope))

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		s.logger.Error("Failed to generate api key components", zap.Error(err))
		return nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
	}

	newKey := &apikey.APIKey{
		KeyHash:     keyHash,
		Prefix:      prefix,
		Description: description,
		Scope:       scope,
		IsEnabled:   true,
	}
	insertedID, err := s.repo.Create(ctx, newKey)
	if err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, fmt.Errorf("repository error creating api key: %w", err)
	}

	s.logger.Info("API key created", zap.String("id", insertedID.String()), zap.String("prefix", prefix))
	return &dto.CreateAPIKeyResponse{
		ID:          insertedID,
		FullKey:     fullKey,
		Prefix:      prefix,
		Description: description,
		Scope:       scope,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context) ([]*dto.APIKeyResponse, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	responses := make([]*dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = dto.NewAPIKeyResponse(key)
	}
	return responses, nil
}

func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Disable(ctx, id); err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			return fmt.Errorf("%w: api key %s", ierr.ErrNotFound, id)
		}
		s.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("repository error revoking api key %s: %w", id, err)
	}
	s.logger.Info("API key revoked", zap.String("id", id.String()))
	return nil
}

// Authenticate resolves a presented key of the form cg_<prefix>_<secret> and
// checks it against the stored hash and the required scope.
func (s *APIKeyService) Authenticate(ctx context.Context, presented, scope string) (*apikey.APIKey, error) {
	parts := strings.SplitN(presented, "_", 3)
	if len(parts) != 3 || parts[0] != apikey.APIKeyTag || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: malformed api key", ierr.ErrUnauthorized)
	}
	prefix := parts[1]

	record, err := s.repo.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, apikey.ErrAPIKeyNotFound) {
			return nil, ierr.ErrAPIKeyNotFound
		}
		s.logger.Error("Failed to query api key repository", zap.String("prefix", prefix), zap.Error(err))
		return nil, storeUnavailable(err)
	}

	if subtle.ConstantTimeCompare([]byte(util.HashAPIKey(presented)), []byte(record.KeyHash)) != 1 {
		s.logger.Warn("API key hash mismatch", zap.String("prefix", prefix))
		return nil, ierr.ErrAPIKeyNotFound
	}
	if scope != "" && record.Scope != scope {
		s.logger.Warn("API key lacks scope", zap.String("prefix", prefix), zap.String("scope", scope))
		return nil, fmt.Errorf("%w: api key lacks scope %s", ierr.ErrForbidden, scope)
	}
	return record, nil
}

// TouchLastUsed records usage without holding up the request.
func (s *APIKeyService) TouchLastUsed(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.UpdateLastUsed(ctx, id, time.Now().UTC()); err != nil {
			s.logger.Error("Failed to update api key last used time", zap.String("key_id", id.String()), zap.Error(err))
		}
	}()
}
