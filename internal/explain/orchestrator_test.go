package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/retry"
	"lexplain/backend/internal/scoring"
)

func testPolicy() retry.Policy {
	return retry.Policy{Op: "explain-test", Timeout: time.Second, MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func inputs(n int) []Input {
	out := make([]Input, n)
	for i := range out {
		out[i] = Input{
			Index:          i,
			Text:           fmt.Sprintf("clause-%d The tenant shall pay rent monthly.", i),
			Classification: document.Classification{Type: document.TypePayment, Confidence: 0.7},
			Risk:           document.RiskAssessment{Score: 3, Category: document.RiskMedium},
			Language:       "en",
		}
	}
	return out
}

func clauseIndex(prompt string) int {
	var idx int
	start := strings.Index(prompt, "clause-")
	_, _ = fmt.Sscanf(prompt[start:], "clause-%d", &idx)
	return idx
}

func TestExplainAllPreservesOrder(t *testing.T) {
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		idx := clauseIndex(prompt)
		// later clauses finish first
		time.Sleep(time.Duration(10-idx) * 3 * time.Millisecond)
		return fmt.Sprintf(`{"type":"payment","riskScore":2,"riskCategory":"medium","explanation":"explained %d","questions":["q%d"]}`, idx, idx), nil
	})
	orch := New(gen, Options{Concurrency: 10, Policy: testPolicy(), Types: scoring.DefaultClassifier()})

	results := orch.ExplainAll(context.Background(), inputs(10))
	require.Len(t, results, 10)
	for i, result := range results {
		assert.False(t, result.Fallback)
		assert.Equal(t, i, result.Clause.Index)
		assert.Equal(t, fmt.Sprintf("explained %d", i), result.Clause.Explanation)
		assert.Equal(t, []string{fmt.Sprintf("q%d", i)}, result.Clause.SuggestedQuestions)
	}
}

func TestExplainAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return `{"explanation":"ok"}`, nil
	})
	orch := New(gen, Options{Concurrency: 3, Policy: testPolicy()})
	results := orch.ExplainAll(context.Background(), inputs(12))

	require.Len(t, results, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, 3, orch.Concurrency())
	assert.Equal(t, MaxConcurrency, New(gen, Options{Concurrency: 50}).Concurrency())
	assert.Equal(t, DefaultConcurrency, New(gen, Options{}).Concurrency())
}

func TestExplainAllIsolatesFailures(t *testing.T) {
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		switch clauseIndex(prompt) {
		case 1:
			return "", errors.New("upstream 503")
		case 2:
			return "not json at all", nil
		}
		return `{"explanation":"fine","questions":["a","b","c","d"]}`, nil
	})
	orch := New(gen, Options{Policy: testPolicy()})
	results := orch.ExplainAll(context.Background(), inputs(4))

	assert.False(t, results[0].Fallback)
	assert.Equal(t, []string{"a", "b", "c"}, results[0].Clause.SuggestedQuestions)

	assert.True(t, results[1].Fallback)
	assert.ErrorIs(t, results[1].Err, retry.ErrServiceFailure)
	assert.Equal(t, Fallback(document.TypePayment).Explanation, results[1].Clause.Explanation)

	assert.True(t, results[2].Fallback)
	assert.ErrorIs(t, results[2].Err, ai.ErrParseFailed)

	assert.False(t, results[3].Fallback)
}

func TestExplainAllWithoutGenerator(t *testing.T) {
	in := inputs(2)
	in[1].Classification = document.Classification{Type: "unknown-type", Confidence: 0.4}
	results := New(nil, Options{}).ExplainAll(context.Background(), in)

	require.Len(t, results, 2)
	for _, result := range results {
		assert.True(t, result.Fallback)
		assert.NoError(t, result.Err)
		assert.Len(t, result.Clause.SuggestedQuestions, 3)
	}
	assert.Equal(t, Fallback(document.TypeGeneral).Explanation, results[1].Clause.Explanation)
}

func TestExplainAllCancelledContextFallsBack(t *testing.T) {
	var calls int32
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return `{"explanation":"x"}`, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := New(gen, Options{Policy: testPolicy()}).ExplainAll(ctx, inputs(3))
	require.Len(t, results, 3)
	for _, result := range results {
		assert.True(t, result.Fallback)
		assert.ErrorIs(t, result.Err, context.Canceled)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestReplyOverridesHeuristics(t *testing.T) {
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		return "```json\n{\"type\":\"Penalty\",\"riskScore\":9,\"riskCategory\":\"severe\",\"explanation\":\" Late payment costs extra. \"}\n```", nil
	})
	results := New(gen, Options{Policy: testPolicy(), Types: scoring.DefaultClassifier()}).ExplainAll(context.Background(), inputs(1))

	clause := results[0].Clause
	assert.Equal(t, document.TypePenalty, clause.Type)
	assert.Equal(t, 5, clause.RiskScore)
	assert.Equal(t, document.RiskHigh, clause.RiskCategory)
	assert.Equal(t, "Late payment costs extra.", clause.Explanation)
	assert.Equal(t, Fallback(document.TypePenalty).Questions, clause.SuggestedQuestions)
}

func TestReplyUnknownTypeKeepsHeuristic(t *testing.T) {
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		return `{"type":"lunch","explanation":"ok"}`, nil
	})
	results := New(gen, Options{Policy: testPolicy(), Types: scoring.DefaultClassifier()}).ExplainAll(context.Background(), inputs(1))
	assert.Equal(t, document.TypePayment, results[0].Clause.Type)
	assert.Equal(t, 3, results[0].Clause.RiskScore)
}

func TestPromptLanguageDirective(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return `{"explanation":"ok"}`, nil
	})
	in := inputs(2)
	in[1].Language = "es"
	New(gen, Options{Concurrency: 1, Policy: testPolicy()}).ExplainAll(context.Background(), in)

	require.Len(t, prompts, 2)
	assert.True(t, strings.HasPrefix(prompts[0], "Explain one clause"))
	assert.True(t, strings.HasPrefix(prompts[1], "Respond only in Spanish (es)"))
}

func TestFallbackCoversEveryType(t *testing.T) {
	for _, label := range scoring.DefaultClassifier().Types() {
		canned := Fallback(label)
		assert.NotEmpty(t, canned.Explanation, label)
		assert.Len(t, canned.Questions, 3, label)
	}
	// copies must not alias the table
	q := Fallback(document.TypePayment).Questions
	q[0] = "changed"
	assert.NotEqual(t, "changed", Fallback(document.TypePayment).Questions[0])
}
