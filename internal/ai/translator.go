package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lexplain/backend/internal/lang"
)

// TranslatorConfig drives the HTTP translation client.
type TranslatorConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ErrMissingEndpoint is returned when no translation endpoint is configured.
var ErrMissingEndpoint = errors.New("translation endpoint not configured")

// HTTPTranslator calls a LibreTranslate-compatible POST /translate endpoint.
type HTTPTranslator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPTranslator constructs a translator if configuration is valid.
func NewHTTPTranslator(cfg TranslatorConfig) (*HTTPTranslator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPTranslator{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate implements Translator.
func (t *HTTPTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if t == nil {
		return "", ErrMissingEndpoint
	}
	if strings.TrimSpace(text) == "" || source == target {
		return text, nil
	}
	if source == "" {
		source = "auto"
	}

	body, err := json.Marshal(translateRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: t.apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(newStatusError("translate", resp))
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("translate: %s", decoded.Error)
	}
	if strings.TrimSpace(decoded.TranslatedText) == "" {
		return "", ErrEmptyResponse
	}
	return decoded.TranslatedText, nil
}

// GenerativeTranslator translates by prompting a TextGenerator.
type GenerativeTranslator struct {
	generator TextGenerator
}

// NewGenerativeTranslator returns nil when generator is nil.
func NewGenerativeTranslator(generator TextGenerator) *GenerativeTranslator {
	if generator == nil {
		return nil
	}
	return &GenerativeTranslator{generator: generator}
}

// Translate implements Translator.
func (g *GenerativeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if g == nil {
		return "", ErrDisabled
	}
	if strings.TrimSpace(text) == "" || source == target {
		return text, nil
	}
	prompt := TranslationPrompt(text, source, target)
	out, err := g.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = StripFences(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// TranslationPrompt builds the instruction used for model-backed translation. The
// target language directive comes first.
func TranslationPrompt(text, source, target string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text into %s.\n", lang.DisplayName(target))
	if source != "" && source != "auto" {
		fmt.Fprintf(&b, "The source language is %s.\n", lang.DisplayName(source))
	}
	b.WriteString("Keep markdown headings, bullet markers, numbers and amounts unchanged. ")
	b.WriteString("Reply with the translation only.\n\n")
	b.WriteString(text)
	return b.String()
}
