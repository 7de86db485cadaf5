package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newActivation(t *testing.T, repo license.Repository, blocklist *BlocklistChecker) *ActivationService {
	t.Helper()
	s := NewActivationService(repo, blocklist, 30*24*time.Hour, time.Second, zap.NewNop())
	s.nowFn = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestActivate_OneShot(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	_, err := repo.Create(ctx, &license.License{LicenseKey: "ABC", Status: license.StatusPending})
	require.NoError(t, err)
	svc := newActivation(t, repo, nil)

	lic, err := svc.Activate(ctx, "ABC", "user1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "user1", lic.OwnerID.String)
	assert.Equal(t, license.StatusActive, lic.Status)
	assert.Equal(t, "10.0.0.1", lic.BoundDevice.String)
	assert.Equal(t, time.Date(2025, 7, 2, 12, 0, 0, 0, time.UTC), lic.ExpiresAt.Time)

	_, err = svc.Activate(ctx, "ABC", "user2", "10.0.0.2")
	assert.ErrorIs(t, err, ierr.ErrAlreadyActivated)

	_, err = svc.Activate(ctx, "ABC", "user1", "10.0.0.1")
	assert.ErrorIs(t, err, ierr.ErrAlreadyActivated, "even the owner cannot activate twice")
}

func TestActivate_Preconditions(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	_, err := repo.Create(ctx, &license.License{LicenseKey: "BAN", Status: license.StatusBanned})
	require.NoError(t, err)
	svc := newActivation(t, repo, nil)

	_, err = svc.Activate(ctx, "missing", "u", "")
	assert.ErrorIs(t, err, ierr.ErrLicenseNotFound)

	_, err = svc.Activate(ctx, "BAN", "u", "")
	assert.ErrorIs(t, err, ierr.ErrLicenseBanned)

	_, err = svc.Activate(ctx, "", "u", "")
	assert.ErrorIs(t, err, ierr.ErrValidation)

	_, err = svc.Activate(ctx, "BAN", " ", "")
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestActivate_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	_, err := repo.Create(ctx, &license.License{LicenseKey: "RACE", Status: license.StatusActive})
	require.NoError(t, err)
	svc := newActivation(t, repo, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Activate(ctx, "RACE", fmt.Sprintf("user%d", i), "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ierr.ErrAlreadyActivated)
	}
	assert.Equal(t, 1, wins)
}

func TestActivate_Blocklist(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	for _, key := range []string{"A", "B"} {
		_, err := repo.Create(ctx, &license.License{LicenseKey: key, Status: license.StatusPending})
		require.NoError(t, err)
	}
	store := memstorage.NewBlocklist()
	require.NoError(t, store.Add(ctx, BlockKindDevice, "6.6.6.6"))
	svc := newActivation(t, repo, NewBlocklistChecker(store, config.OnCheckErrorAllow, time.Second, zap.NewNop()))

	_, err := svc.Activate(ctx, "A", "user1", "6.6.6.6")
	assert.ErrorIs(t, err, ierr.ErrBlocked)

	lic, err := repo.FindByKey(ctx, "A")
	require.NoError(t, err)
	assert.False(t, lic.IsActivated(), "blocked activation leaves the license unclaimed")

	_, err = svc.Activate(ctx, "B", "user2", "1.2.3.4")
	assert.NoError(t, err)
}

type brokenBlocklist struct{ memstorage.Blocklist }

func (*brokenBlocklist) Contains(ctx context.Context, kind, value string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestActivate_BlocklistErrorPolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		policy  string
		wantErr error
	}{
		{config.OnCheckErrorAllow, nil},
		{config.OnCheckErrorDeny, ierr.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			repo := memstorage.NewLicenseRepository()
			_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusPending})
			require.NoError(t, err)

			checker := NewBlocklistChecker(&brokenBlocklist{}, tt.policy, time.Second, zap.NewNop())
			_, err = newActivation(t, repo, checker).Activate(ctx, "K", "u", "1.1.1.1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// lostRace claims the license for someone else between the precondition read
// and the conditional write.
type lostRace struct {
	*memstorage.LicenseRepository
}

func (r lostRace) Activate(ctx context.Context, params license.ActivateParams) (bool, error) {
	other := params
	other.OwnerID = "someone-else"
	_, _ = r.LicenseRepository.Activate(ctx, other)
	return r.LicenseRepository.Activate(ctx, params)
}

func TestActivate_LostRaceIsReclassified(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusPending})
	require.NoError(t, err)

	_, err = newActivation(t, lostRace{repo}, nil).Activate(ctx, "K", "u", "")
	assert.ErrorIs(t, err, ierr.ErrAlreadyActivated)

	lic, err := repo.FindByKey(ctx, "K")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", lic.OwnerID.String)
}

// readFailsAfterClaim serves reads until the claim lands, then fails them.
type readFailsAfterClaim struct {
	*memstorage.LicenseRepository
	claimed *bool
}

func (r readFailsAfterClaim) Activate(ctx context.Context, params license.ActivateParams) (bool, error) {
	ok, err := r.LicenseRepository.Activate(ctx, params)
	*r.claimed = ok
	return ok, err
}

func (r readFailsAfterClaim) FindByKey(ctx context.Context, key string) (*license.License, error) {
	if *r.claimed {
		return nil, errors.New("connection reset")
	}
	return r.LicenseRepository.FindByKey(ctx, key)
}

func TestActivate_CommittedClaimSurvivesReadFailure(t *testing.T) {
	ctx := context.Background()
	repo := memstorage.NewLicenseRepository()
	_, err := repo.Create(ctx, &license.License{LicenseKey: "K", Status: license.StatusPending, Tier: "pro"})
	require.NoError(t, err)

	var claimed bool
	lic, err := newActivation(t, readFailsAfterClaim{repo, &claimed}, nil).Activate(ctx, "K", "u", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "u", lic.OwnerID.String)
	assert.Equal(t, license.StatusActive, lic.Status)
	assert.Equal(t, "pro", lic.Tier)
	assert.Equal(t, "10.0.0.1", lic.BoundDevice.String)
	assert.Equal(t, time.Date(2025, 7, 2, 12, 0, 0, 0, time.UTC), lic.ExpiresAt.Time)

	stored, err := repo.FindByKey(ctx, "K")
	require.NoError(t, err)
	assert.Equal(t, "u", stored.OwnerID.String)
}
