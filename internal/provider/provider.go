package provider

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the provider answered without text.
var ErrEmptyCompletion = errors.New("provider returned no completion")

// Generator is the opaque text-generation capability the gate protects.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
