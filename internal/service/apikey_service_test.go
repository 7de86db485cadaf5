package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewAPIKeyService(memstorage.NewAPIKeyRepository(), zap.NewNop())

	created, err := svc.CreateAPIKey(ctx, "payment relay", "")
	require.NoError(t, err)
	assert.Equal(t, apikey.ScopeProvision, created.Scope)
	assert.Contains(t, created.FullKey, "cg_"+created.Prefix+"_")

	key, err := svc.Authenticate(ctx, created.FullKey, apikey.ScopeProvision)
	require.NoError(t, err)
	assert.Equal(t, created.ID, key.ID)

	keys, err := svc.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].IsEnabled)

	require.NoError(t, svc.RevokeAPIKey(ctx, created.ID))
	_, err = svc.Authenticate(ctx, created.FullKey, apikey.ScopeProvision)
	assert.ErrorIs(t, err, ierr.ErrAPIKeyNotFound)

	err = svc.RevokeAPIKey(ctx, uuid.New())
	assert.ErrorIs(t, err, ierr.ErrNotFound)
}

func TestAuthenticate_Rejects(t *testing.T) {
	ctx := context.Background()
	svc := NewAPIKeyService(memstorage.NewAPIKeyRepository(), zap.NewNop())
	created, err := svc.CreateAPIKey(ctx, "relay", apikey.ScopeProvision)
	require.NoError(t, err)

	for _, presented := range []string{"", "garbage", "lm_abc_def", "cg__secret"} {
		_, err := svc.Authenticate(ctx, presented, apikey.ScopeProvision)
		assert.ErrorIs(t, err, ierr.ErrUnauthorized, presented)
	}

	tampered := created.FullKey[:len(created.FullKey)-1] + "x"
	if tampered == created.FullKey {
		tampered = created.FullKey[:len(created.FullKey)-1] + "y"
	}
	_, err = svc.Authenticate(ctx, tampered, apikey.ScopeProvision)
	assert.ErrorIs(t, err, ierr.ErrAPIKeyNotFound)

	_, err = svc.Authenticate(ctx, created.FullKey, "admin")
	assert.ErrorIs(t, err, ierr.ErrForbidden)
}
