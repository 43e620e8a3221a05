package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexplain/backend/internal/retry"
)

func TestHTTPTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var req translateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en", req.Source)
		assert.Equal(t, "es", req.Target)
		assert.Equal(t, "key", req.APIKey)
		_ = json.NewEncoder(w).Encode(translateResponse{TranslatedText: "[es] " + req.Q})
	}))
	defer srv.Close()

	translator, err := NewHTTPTranslator(TranslatorConfig{BaseURL: srv.URL, APIKey: "key"})
	require.NoError(t, err)

	out, err := translator.Translate(context.Background(), "Pay rent.", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "[es] Pay rent.", out)

	same, err := translator.Translate(context.Background(), "Pay rent.", "es", "es")
	require.NoError(t, err)
	assert.Equal(t, "Pay rent.", same)
}

func TestHTTPTranslatorRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPTranslator(TranslatorConfig{})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestGenerativeTranslatorPrompt(t *testing.T) {
	var prompt string
	gen := GeneratorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```\nPagar la renta.\n```", nil
	})
	out, err := NewGenerativeTranslator(gen).Translate(context.Background(), "Pay rent.", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "Pagar la renta.", out)
	assert.True(t, strings.HasPrefix(prompt, "Translate the following text into Spanish."))
	assert.True(t, strings.HasSuffix(prompt, "Pay rent."))

	assert.Nil(t, NewGenerativeTranslator(nil))
}

func TestTranslatorWithFallback(t *testing.T) {
	failing := TranslatorFunc(func(context.Context, string, string, string) (string, error) {
		return "", errors.New("primary down")
	})
	backup := TranslatorFunc(func(_ context.Context, text, _, target string) (string, error) {
		return target + ":" + text, nil
	})

	out, err := TranslatorWithFallback(failing, backup).Translate(context.Background(), "hi", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "fr:hi", out)

	assert.NotNil(t, TranslatorWithFallback(nil, backup))
	assert.Nil(t, TranslatorWithFallback(nil, nil))
}

func TestSplitChunksRoundTrip(t *testing.T) {
	text := strings.Repeat("The tenant pays rent monthly. Late fees apply after five days; notices go in writing.\n\n", 12) +
		strings.Repeat("x", 130)
	chunks := SplitChunks(text, 120)

	var rebuilt strings.Builder
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Text), 120)
		rebuilt.WriteString(chunk.Text)
		rebuilt.WriteString(chunk.Sep)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkedPreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	upper := TranslatorFunc(func(_ context.Context, text, _, _ string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return strings.ToUpper(text), nil
	})
	text := "first paragraph of the lease.\n\nsecond paragraph of the lease.\n\nthird paragraph of the lease."
	out, err := Chunked(upper, 40).Translate(context.Background(), text, "en", "xx")
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(text), out)
	assert.Equal(t, 3, calls)

	short, err := Chunked(upper, 1000).Translate(context.Background(), "tiny", "en", "xx")
	require.NoError(t, err)
	assert.Equal(t, "TINY", short)
}

func TestChunkedPropagatesFailure(t *testing.T) {
	n := 0
	flaky := TranslatorFunc(func(_ context.Context, text, _, _ string) (string, error) {
		n++
		if n == 2 {
			return "", errors.New("boom")
		}
		return text, nil
	})
	_, err := Chunked(flaky, 20).Translate(context.Background(), "aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd", "en", "es")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/")
}

func TestChunkedWithRetryRetriesOnlyTheFailedPiece(t *testing.T) {
	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	flaky := TranslatorFunc(func(_ context.Context, text, _, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[text]++
		if strings.HasPrefix(text, "second") && calls[text] == 1 {
			return "", errors.New("upstream 503")
		}
		return strings.ToUpper(text), nil
	})
	policy := retry.Policy{Op: "translate", Timeout: time.Second, MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	text := "first paragraph of the lease.\n\nsecond paragraph of the lease.\n\nthird paragraph of the lease."
	out, err := ChunkedWithRetry(flaky, 40, policy).Translate(context.Background(), text, "en", "xx")
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(text), out)
	assert.Equal(t, map[string]int{
		"first paragraph of the lease.":  1,
		"second paragraph of the lease.": 2,
		"third paragraph of the lease.":  1,
	}, calls)
}

func TestChunkedWithRetryGivesUp(t *testing.T) {
	n := 0
	down := TranslatorFunc(func(context.Context, string, string, string) (string, error) {
		n++
		return "", errors.New("boom")
	})
	policy := retry.Policy{Op: "translate", Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := ChunkedWithRetry(down, 1000, policy).Translate(context.Background(), "short text", "en", "es")
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrServiceFailure)
	assert.Equal(t, 2, n)
	assert.Nil(t, ChunkedWithRetry(nil, 10, policy))
}
