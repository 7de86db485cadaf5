package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/license"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGeneration(f *gateFixture, gen provider.Generator) *GenerationService {
	return NewGenerationService(f.gate(), f.recorder(), gen, &config.ProviderConfig{
		Timeout:       time.Second,
		CommentPrompt: "comment-system",
		SummaryPrompt: "summary-system",
	}, zap.NewNop())
}

func TestGenerate_ChargesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))

	var gotSystem, gotUser string
	svc := newGeneration(f, provider.GeneratorFunc(func(ctx context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return "  Great insight!  ", nil
	}))

	res, err := svc.Generate(ctx, GenerateInput{
		Credential: Credential{LicenseKey: "K", Fingerprint: "1.1.1.1"},
		Prompt:     "Post about Go",
		Kind:       quota.KindSummary,
	})
	require.NoError(t, err)
	assert.Equal(t, "Great insight!", res.Text)
	assert.Equal(t, "u", res.UserID)
	assert.Equal(t, int64(24), res.Remaining)
	assert.Equal(t, "summary-system", gotSystem)
	assert.Equal(t, "Post about Go", gotUser)

	c, err := f.quotas.Get(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.DailyUsage)
	assert.Equal(t, "2025-06-02", c.LastResetDate)

	history, err := f.quotas.ListHistory(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "K", history[0].LicenseKey)
	assert.Equal(t, len("Great insight!"), history[0].OutputChars)
}

func TestGenerate_ProviderFailureDoesNotCharge(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "K", "u", "", license.StatusActive, f.now.Add(time.Hour))

	for name, gen := range map[string]provider.GeneratorFunc{
		"error": func(ctx context.Context, _, _ string) (string, error) { return "", errors.New("upstream 500") },
		"empty": func(ctx context.Context, _, _ string) (string, error) { return "   ", nil },
		"timeout": func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newGeneration(f, gen)
			svc.timeout = 20 * time.Millisecond

			_, err := svc.Generate(ctx, GenerateInput{Credential: Credential{UserID: "u", Fingerprint: "1.1.1.1"}, Prompt: "hi"})
			assert.ErrorIs(t, err, ierr.ErrProviderError)

			_, err = f.quotas.Get(ctx, "u")
			assert.ErrorIs(t, err, quota.ErrNotFound)
		})
	}
}

func TestGenerate_DeniedNeverCallsProvider(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t, config.DeviceModeLenient)
	f.seedOwned(t, "K", "u", "", license.StatusBanned, f.now.Add(time.Hour))

	called := false
	svc := newGeneration(f, provider.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		called = true
		return "x", nil
	}))

	_, err := svc.Generate(ctx, GenerateInput{Credential: Credential{UserID: "u"}, Prompt: "hi"})
	assert.ErrorIs(t, err, ierr.ErrLicenseBanned)
	assert.False(t, called)
}

func TestGenerate_InputValidation(t *testing.T) {
	f := newGateFixture(t, config.DeviceModeLenient)
	svc := newGeneration(f, provider.GeneratorFunc(func(ctx context.Context, _, _ string) (string, error) {
		return "x", nil
	}))

	for _, in := range []GenerateInput{
		{Credential: Credential{UserID: "u"}, Prompt: "  "},
		{Credential: Credential{UserID: "u"}, Prompt: strings.Repeat("a", MaxPromptChars+1)},
		{Credential: Credential{UserID: "u"}, Prompt: "ok", Kind: "poem"},
	} {
		_, err := svc.Generate(context.Background(), in)
		assert.ErrorIs(t, err, ierr.ErrValidation)
	}
}
