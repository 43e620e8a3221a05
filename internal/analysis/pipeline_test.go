package analysis

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/cache"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/explain"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/retry"
	"lexplain/backend/internal/scoring"
	"lexplain/backend/internal/store"
	"lexplain/backend/internal/summary"
)

const lease = `RESIDENTIAL LEASE AGREEMENT

Section 1. The Landlord agrees to rent the premises located at 12 Harbor Road to the Tenant for a term of twelve months.
Section 2. The Tenant shall pay monthly rent of $1,200 on or before the first day of each month by bank transfer.
Section 3. Breach of this agreement may result in immediate termination and forfeiture of all deposits held by the Landlord.
Section 4. The Tenant shall keep the premises in good repair and notify the Landlord promptly of any damage.
Section 5. Either party may terminate this agreement with thirty (30) days written notice to the other party.`

func testPolicy() retry.Policy {
	return retry.Policy{Timeout: time.Second, MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// fakeGenerator answers summary prompts with markdown and clause prompts with JSON.
func fakeGenerator() ai.TextGenerator {
	return ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Summarize the following agreement") {
			return "## Parties\n- Landlord and Tenant\n## Risks and Penalties\n- Deposit forfeiture", nil
		}
		return `{"explanation": "Generated explanation.", "questions": ["Generated question?"]}`, nil
	})
}

func newPipeline(gen ai.TextGenerator, opts Options) *Pipeline {
	classifier := scoring.DefaultClassifier()
	opts.Classifier = classifier
	opts.Detector = lang.NewStopwordDetector()
	opts.Explainer = explain.New(gen, explain.Options{Policy: testPolicy(), Types: classifier})
	opts.Summarizer = summary.New(gen, summary.Options{Policy: testPolicy()})
	return New(opts)
}

func TestAnalyzeSingleTerminationClause(t *testing.T) {
	p := newPipeline(nil, Options{})
	report, err := p.Analyze(context.Background(), Request{Text: "Either party may terminate this agreement with thirty (30) days written notice."})
	require.NoError(t, err)

	require.Len(t, report.Bundle.Clauses, 1)
	clause := report.Bundle.Clauses[0]
	assert.Equal(t, document.TypeTermination, clause.Type)
	assert.GreaterOrEqual(t, clause.Confidence, 0.5)
	assert.Contains(t, []string{document.RiskLow, document.RiskMedium}, clause.RiskCategory)
	assert.NotEmpty(t, clause.Explanation)
	assert.True(t, report.SummaryFallback)
	assert.Equal(t, 1, report.FallbackClauses)
	assert.NotEmpty(t, report.Bundle.DocumentID)
	assert.Equal(t, document.DefaultLanguage, report.Bundle.Language)
}

func TestAnalyzeHighRiskClause(t *testing.T) {
	p := newPipeline(nil, Options{})
	report, err := p.Analyze(context.Background(), Request{
		Text: "Breach of this agreement may result in immediate termination and forfeiture of all deposits.",
	})
	require.NoError(t, err)
	require.Len(t, report.Bundle.Clauses, 1)
	clause := report.Bundle.Clauses[0]
	assert.Contains(t, []string{document.TypePenalty, document.TypeTermination}, clause.Type)
	assert.Equal(t, document.RiskHigh, clause.RiskCategory)
	assert.Equal(t, document.RiskHigh, report.Overall.Category)
}

func TestAnalyzeWithGeneratorKeepsOrder(t *testing.T) {
	p := newPipeline(fakeGenerator(), Options{})
	report, err := p.Analyze(context.Background(), Request{DocumentID: "lease-1", Text: lease})
	require.NoError(t, err)

	require.Len(t, report.Bundle.Clauses, 5)
	for i, clause := range report.Bundle.Clauses {
		assert.Equal(t, i, clause.Index)
		assert.Equal(t, "Generated explanation.", clause.Explanation)
	}
	assert.True(t, strings.HasPrefix(report.Bundle.Clauses[2].Text, "Section 3."))
	assert.Equal(t, document.RiskHigh, report.Bundle.Clauses[2].RiskCategory)
	assert.False(t, report.SummaryFallback)
	assert.Zero(t, report.FallbackClauses)
	assert.Equal(t, "lease-1", report.Bundle.DocumentID)
	assert.Equal(t, []string{"Generated question?"}, report.Bundle.SuggestedQuestions)
}

func TestAnalyzeDeadlineFallsBack(t *testing.T) {
	blocking := ai.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := newPipeline(blocking, Options{Deadline: 100 * time.Millisecond})

	start := time.Now()
	report, err := p.Analyze(context.Background(), Request{Text: lease})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, len(report.Bundle.Clauses), report.FallbackClauses)
	assert.True(t, report.SummaryFallback)
	assert.Contains(t, report.Bundle.Summary, "## Risks and Penalties")
}

func TestAnalyzeCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := ai.GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := newPipeline(gen, Options{})

	report, err := p.Analyze(ctx, Request{Text: lease})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	_, err := newPipeline(nil, Options{}).Analyze(context.Background(), Request{Text: " \n "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestAnalyzeProgressEvents(t *testing.T) {
	var stages []string
	p := newPipeline(nil, Options{})
	_, err := p.Analyze(context.Background(), Request{
		Text:     lease,
		Progress: func(ev Event) { stages = append(stages, ev.Stage) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{StageDetected, StageSegmented, StageExplained, StageSummarized, StageCompleted}, stages)
}

func TestAnalyzeCachesAndTranslates(t *testing.T) {
	translator := ai.TranslatorFunc(func(_ context.Context, text, _, target string) (string, error) {
		return target + "|" + text, nil
	})
	mem := cache.NewMemoryStore()
	tc := cache.NewTranslationCache(mem, translator, cache.Options{Policy: testPolicy()})
	p := newPipeline(nil, Options{Cache: tc})

	report, err := p.Analyze(context.Background(), Request{DocumentID: "doc-7", Text: lease, Language: "es"})
	require.NoError(t, err)
	assert.Equal(t, "es", report.Bundle.Language)
	assert.Equal(t, "en", report.Bundle.SourceLanguage)
	for _, clause := range report.Bundle.Clauses {
		assert.True(t, strings.HasPrefix(clause.Explanation, "es|"), clause.Explanation)
		assert.True(t, strings.HasPrefix(clause.Text, "Section"))
	}

	source, err := tc.Source(context.Background(), "doc-7")
	require.NoError(t, err)
	assert.Equal(t, "en", source.Language)
	_, err = tc.Get(context.Background(), "doc-7", "es")
	assert.NoError(t, err)
}

func TestAnalyzeRecordsDocument(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "analysis.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := newPipeline(nil, Options{Recorder: db})
	report, err := p.Analyze(context.Background(), Request{DocumentID: "doc-9", Filename: "lease.txt", MimeType: "text/plain", Text: lease})
	require.NoError(t, err)

	record, err := db.GetDocument("doc-9")
	require.NoError(t, err)
	assert.Equal(t, "lease.txt", record.Filename)
	assert.Equal(t, 5, record.ClauseCount)
	assert.Equal(t, report.Overall.Category, record.OverallRisk)
	assert.NotEmpty(t, record.Types())
}

func TestDocumentQuestions(t *testing.T) {
	clauses := []document.Clause{
		{RiskCategory: document.RiskLow, SuggestedQuestions: []string{"low question?"}},
		{RiskCategory: document.RiskMedium, SuggestedQuestions: []string{"m1?", "Shared?"}},
		{RiskCategory: document.RiskHigh, SuggestedQuestions: []string{"h1?", "shared?", "h2?"}},
		{RiskCategory: document.RiskHigh, SuggestedQuestions: []string{"h3?", "h4?"}},
		{RiskCategory: document.RiskMedium, SuggestedQuestions: []string{"m2?", "m3?"}},
	}
	got := DocumentQuestions(clauses)
	assert.Equal(t, []string{"h1?", "shared?", "h2?", "h3?", "h4?", "m1?"}, got)
	assert.Empty(t, DocumentQuestions(clauses[:1]))
}

func TestGenericReport(t *testing.T) {
	report := genericReport("doc-x", "", lang.Result{Language: "en", Confidence: 0.5})
	require.Len(t, report.Bundle.Clauses, 1)
	clause := report.Bundle.Clauses[0]
	assert.Equal(t, document.TypeGeneral, clause.Type)
	assert.Equal(t, document.RiskMedium, clause.RiskCategory)
	assert.Equal(t, emptyDocument, clause.Text)
	assert.True(t, report.Generic)
	found, err := summary.Validate(report.Bundle.Summary)
	require.NoError(t, err)
	assert.Len(t, found, len(summary.Sections))
}
