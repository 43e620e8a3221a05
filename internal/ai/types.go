package ai

import (
	"context"
	"errors"
)

var (
	// ErrDisabled is returned by clients constructed without credentials.
	ErrDisabled = errors.New("ai service disabled")
	// ErrEmptyResponse is returned when the upstream reply carries no content.
	ErrEmptyResponse = errors.New("ai service returned an empty response")
)

// TextGenerator turns a prompt into free text. Implementations are stateless and
// called only through retry.Do.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Translator converts text between ISO 639-1 languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GeneratorFunc adapts a function to TextGenerator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, text, source, target string) (string, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}
