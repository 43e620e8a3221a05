// Package analysis runs the full document pipeline: language detection,
// segmentation, heuristic scoring, explanations, summary and caching.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/cache"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/explain"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/metrics"
	"lexplain/backend/internal/scoring"
	"lexplain/backend/internal/segment"
	"lexplain/backend/internal/store"
	"lexplain/backend/internal/summary"
	"lexplain/backend/internal/util"
)

const (
	// DefaultDeadline bounds one full document analysis.
	DefaultDeadline = 60 * time.Second
	// MaxDocumentQuestions caps the document-level suggested questions.
	MaxDocumentQuestions = 6

	persistTimeout = 5 * time.Second
	emptyDocument  = "No readable text was found in this document."
)

// ErrEmptyText is returned for requests without any text.
var ErrEmptyText = errors.New("document text is empty")

// Progress stages.
const (
	StageDetected   = "detected"
	StageSegmented  = "segmented"
	StageExplained  = "explained"
	StageSummarized = "summarized"
	StageTranslated = "translated"
	StageCompleted  = "completed"
)

// Event reports pipeline progress.
type Event struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Message    string `json:"message,omitempty"`
	Clauses    int    `json:"clauses,omitempty"`
}

// Recorder persists document metadata. *store.Database satisfies it.
type Recorder interface {
	SaveDocument(doc *store.DocumentRecord) error
}

// Request is one document to analyze.
type Request struct {
	DocumentID string
	Filename   string
	MimeType   string
	Text       string
	// Language is the language the caller wants the bundle in; empty means the
	// document's own language.
	Language string
	Progress func(Event)
}

// Report is the outcome of Analyze.
type Report struct {
	Bundle          document.Bundle       `json:"bundle"`
	Overall         scoring.OverallResult `json:"overall"`
	Detected        lang.Result           `json:"detected_language"`
	FallbackClauses int                   `json:"fallback_clauses"`
	SummaryFallback bool                  `json:"summary_fallback"`
	Generic         bool                  `json:"generic"`
}

// Options wires a Pipeline. Classifier and RiskScorer default to the built-in
// tables; every other collaborator is optional.
type Options struct {
	Deadline   time.Duration
	Detector   lang.Detector
	Classifier *scoring.Classifier
	RiskScorer *scoring.RiskScorer
	Explainer  *explain.Orchestrator
	Summarizer *summary.Generator
	Cache      *cache.TranslationCache
	Recorder   Recorder
}

// Pipeline analyzes documents. It is safe for concurrent use.
type Pipeline struct {
	deadline   time.Duration
	detector   lang.Detector
	classifier *scoring.Classifier
	risk       *scoring.RiskScorer
	explainer  *explain.Orchestrator
	summarizer *summary.Generator
	cache      *cache.TranslationCache
	recorder   Recorder
}

// New builds a pipeline from opts.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		deadline:   opts.Deadline,
		detector:   opts.Detector,
		classifier: opts.Classifier,
		risk:       opts.RiskScorer,
		explainer:  opts.Explainer,
		summarizer: opts.Summarizer,
		cache:      opts.Cache,
		recorder:   opts.Recorder,
	}
	if p.deadline <= 0 {
		p.deadline = DefaultDeadline
	}
	if p.classifier == nil {
		p.classifier = scoring.DefaultClassifier()
	}
	if p.risk == nil {
		p.risk = scoring.DefaultRiskScorer()
	}
	if p.explainer == nil {
		p.explainer = explain.New(nil, explain.Options{Types: p.classifier})
	}
	if p.summarizer == nil {
		p.summarizer = summary.New(nil, summary.Options{})
	}
	return p
}

// Cache exposes the translation cache, which may be nil.
func (p *Pipeline) Cache() *cache.TranslationCache { return p.cache }

// Analyze produces the bundle for req. External failures and the pipeline deadline
// only degrade the result; the error is non-nil only for empty input or when the
// caller's own context is cancelled.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Report, error) {
	timer := util.StartTimer()
	text := strings.TrimSpace(req.Text)
	if text == "" {
		metrics.PipelineDuration.WithLabelValues("rejected").Observe(timer.Elapsed().Seconds())
		return nil, ErrEmptyText
	}
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}
	emit := func(stage, message string, clauses int) {
		metrics.StageDuration.WithLabelValues(stage).Observe(timer.Lap().Seconds())
		if req.Progress != nil {
			req.Progress(Event{DocumentID: docID, Stage: stage, Message: message, Clauses: clauses})
		}
	}
	log := logrus.WithField("document_id", docID)

	runCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	detected := lang.DetectOrDefault(runCtx, p.detector, text)
	emit(StageDetected, detected.Language, 0)

	report := p.buildReport(runCtx, docID, text, detected, emit)
	if err := ctx.Err(); err != nil {
		metrics.PipelineDuration.WithLabelValues("cancelled").Observe(timer.Elapsed().Seconds())
		log.WithError(err).Warn("analysis cancelled by caller")
		return nil, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.WithField("deadline", p.deadline).Warn("analysis deadline elapsed; outstanding calls fell back")
	}

	report.Bundle.ProcessingTimeMs = timer.ElapsedMs()
	p.persist(ctx, req, report)

	if target := p.targetLanguage(req.Language, detected.Language); target != detected.Language && p.cache != nil {
		report.Bundle = p.cache.TranslateIfMissing(runCtx, docID, target, report.Bundle)
		emit(StageTranslated, target, len(report.Bundle.Clauses))
	}

	outcome := "success"
	if report.Generic {
		outcome = "generic"
	} else if report.FallbackClauses > 0 || report.SummaryFallback {
		outcome = "degraded"
	}
	metrics.PipelineDuration.WithLabelValues(outcome).Observe(timer.Elapsed().Seconds())
	log.WithFields(logrus.Fields{
		"language":         detected.Language,
		"clauses":          len(report.Bundle.Clauses),
		"fallback_clauses": report.FallbackClauses,
		"summary_fallback": report.SummaryFallback,
		"overall_risk":     report.Overall.Category,
		"processing_ms":    report.Bundle.ProcessingTimeMs,
	}).Info("document analyzed")
	emit(StageCompleted, outcome, len(report.Bundle.Clauses))
	return report, nil
}

func (p *Pipeline) buildReport(ctx context.Context, docID, text string, detected lang.Result, emit func(string, string, int)) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"document_id": docID, "panic": fmt.Sprint(r)}).
				Error("analysis failed; returning generic document")
			report = genericReport(docID, text, detected)
		}
	}()

	segments := segment.Split(text)
	if len(segments) == 0 {
		return genericReport(docID, text, detected)
	}
	emit(StageSegmented, "", len(segments))

	inputs := make([]explain.Input, len(segments))
	for i, clauseText := range segments {
		inputs[i] = explain.Input{
			Index:          i,
			Text:           clauseText,
			Classification: p.classifier.Classify(clauseText),
			Risk:           p.risk.Assess(clauseText),
			Language:       detected.Language,
		}
	}

	results := p.explainer.ExplainAll(ctx, inputs)
	clauses := make([]document.Clause, len(results))
	fallbacks := 0
	for i, result := range results {
		clauses[i] = result.Clause
		if result.Fallback {
			fallbacks++
		}
	}
	emit(StageExplained, "", len(clauses))

	sum := p.summarizer.Summarize(ctx, text, detected.Language, clauses)
	emit(StageSummarized, "", len(clauses))

	return &Report{
		Bundle: document.Bundle{
			DocumentID:         docID,
			Language:           detected.Language,
			SourceLanguage:     detected.Language,
			Summary:            sum.Markdown,
			Clauses:            clauses,
			SuggestedQuestions: DocumentQuestions(clauses),
			CreatedAt:          time.Now().UTC(),
		},
		Overall:         scoring.CombineClauses(clauses),
		Detected:        detected,
		FallbackClauses: fallbacks,
		SummaryFallback: sum.Fallback,
	}
}

// persist writes the source bundle to the cache and the document record to the
// recorder. Neither failure affects the caller.
func (p *Pipeline) persist(ctx context.Context, req Request, report *Report) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	log := logrus.WithField("document_id", report.Bundle.DocumentID)

	if p.cache != nil {
		if err := p.cache.PutSource(writeCtx, report.Bundle); err != nil {
			log.WithError(err).Warn("cache source bundle")
		}
	}
	if p.recorder != nil {
		record := &store.DocumentRecord{
			ID:                 report.Bundle.DocumentID,
			Filename:           req.Filename,
			MimeType:           req.MimeType,
			Language:           report.Detected.Language,
			LanguageConfidence: report.Detected.Confidence,
			ClauseCount:        len(report.Bundle.Clauses),
			OverallRisk:        report.Overall.Category,
			HighRiskClauses:    report.Overall.HighCount,
			ProcessingTimeMs:   report.Bundle.ProcessingTimeMs,
		}
		record.SetTypes(clauseTypes(report.Bundle.Clauses))
		if err := p.recorder.SaveDocument(record); err != nil {
			log.WithError(err).Warn("save document record")
		}
	}
}

func (p *Pipeline) targetLanguage(requested, source string) string {
	if strings.TrimSpace(requested) == "" {
		return source
	}
	return lang.NormalizeOrDefault(requested)
}

// DocumentQuestions gathers the questions of high risk clauses, then medium risk
// ones, dropping case-insensitive duplicates, up to MaxDocumentQuestions.
func DocumentQuestions(clauses []document.Clause) []string {
	out := make([]string, 0, MaxDocumentQuestions)
	seen := make(map[string]bool)
	for _, category := range []string{document.RiskHigh, document.RiskMedium} {
		for _, clause := range clauses {
			if clause.RiskCategory != category {
				continue
			}
			for _, question := range clause.SuggestedQuestions {
				key := strings.ToLower(strings.TrimSpace(question))
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, strings.TrimSpace(question))
				if len(out) == MaxDocumentQuestions {
					return out
				}
			}
		}
	}
	return out
}

// genericReport is the single-clause document returned when no clause list could
// be produced at all.
func genericReport(docID, text string, detected lang.Result) *Report {
	excerpt := document.Truncate(strings.TrimSpace(text), document.MaxClauseLength)
	if excerpt == "" {
		excerpt = emptyDocument
	}
	canned := explain.Fallback(document.TypeGeneral)
	clause := document.Clause{
		Index:              0,
		Text:               excerpt,
		Type:               document.TypeGeneral,
		Confidence:         0.4,
		RiskScore:          2,
		RiskCategory:       document.RiskMedium,
		Explanation:        canned.Explanation,
		SuggestedQuestions: canned.Questions,
	}
	clause.Normalize()
	clauses := []document.Clause{clause}
	return &Report{
		Bundle: document.Bundle{
			DocumentID:         docID,
			Language:           detected.Language,
			SourceLanguage:     detected.Language,
			Summary:            summary.Fallback(clauses),
			Clauses:            clauses,
			SuggestedQuestions: DocumentQuestions(clauses),
			CreatedAt:          time.Now().UTC(),
		},
		Overall:         scoring.CombineClauses(clauses),
		Detected:        detected,
		FallbackClauses: 1,
		SummaryFallback: true,
		Generic:         true,
	}
}

func clauseTypes(clauses []document.Clause) []string {
	var types []string
	seen := make(map[string]bool)
	for _, clause := range clauses {
		if !seen[clause.Type] {
			seen[clause.Type] = true
			types = append(types, clause.Type)
		}
	}
	return types
}
