package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/quota"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"github.com/makkenzo/commentgate-api/internal/metrics"
	"github.com/makkenzo/commentgate-api/internal/provider"
	"go.uber.org/zap"
)

const MaxPromptChars = 8000

type GenerateInput struct {
	Credential
	Prompt string
	Kind   quota.UsageKind
}

type GenerateResult struct {
	Text      string
	UserID    string
	Remaining int64
}

// GenerationService is the protected operation: authorize, call the
// provider, then charge the quota. Nothing is charged unless the provider
// returned text.
type GenerationService struct {
	gate      *AccessGate
	recorder  *UsageRecorder
	generator provider.Generator
	prompts   map[quota.UsageKind]string
	timeout   time.Duration
	logger    *zap.Logger
}

func NewGenerationService(gate *AccessGate, recorder *UsageRecorder, generator provider.Generator, cfg *config.ProviderConfig, logger *zap.Logger) *GenerationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GenerationService{
		gate:      gate,
		recorder:  recorder,
		generator: generator,
		prompts: map[quota.UsageKind]string{
			quota.KindComment: cfg.CommentPrompt,
			quota.KindSummary: cfg.SummaryPrompt,
		},
		timeout: timeout,
		logger:  logger.Named("GenerationService"),
	}
}

func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ierr.ErrValidation)
	}
	if utf8.RuneCountInString(prompt) > MaxPromptChars {
		return nil, fmt.Errorf("%w: prompt exceeds %d characters", ierr.ErrValidation, MaxPromptChars)
	}
	kind := in.Kind
	if kind == "" {
		kind = quota.KindComment
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ierr.ErrValidation, kind)
	}

	dec, err := s.gate.Authorize(ctx, in.Credential)
	if err != nil {
		return nil, err
	}

	text, err := s.callProvider(ctx, s.prompts[kind], prompt)
	if err != nil {
		s.logger.Error("Generation failed", zap.String("user_id", dec.UserID), zap.Error(err))
		return nil, err
	}

	result := &GenerateResult{Text: text, UserID: dec.UserID, Remaining: dec.Remaining}

	counter, err := s.recorder.RecordUsage(ctx, UsageEntry{
		UserID:      dec.UserID,
		LicenseKey:  dec.LicenseKey,
		Kind:        kind,
		PromptChars: utf8.RuneCountInString(prompt),
		OutputChars: utf8.RuneCountInString(text),
		DailyLimit:  dec.DailyLimit,
	})
	if err != nil {
		// Text is returned even when the charge could not be written.
		s.logger.Error("Generated text delivered without charging quota", zap.String("user_id", dec.UserID), zap.Error(err))
		if result.Remaining > 0 {
			result.Remaining--
		}
		return result, nil
	}

	result.Remaining = counter.Remaining()
	return result, nil
}

func (s *GenerationService) callProvider(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(pctx, systemPrompt, userPrompt)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.ProviderLatency.WithLabelValues(result).Observe(elapsed)
		return "", fmt.Errorf("%w: %v", ierr.ErrProviderError, err)
	}
	metrics.ProviderLatency.WithLabelValues("ok").Observe(elapsed)

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %v", ierr.ErrProviderError, provider.ErrEmptyCompletion)
	}
	return text, nil
}
