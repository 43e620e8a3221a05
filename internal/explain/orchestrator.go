// Package explain requests plain-language clause explanations from the generative
// service and substitutes static explanations when it cannot deliver.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/metrics"
	"lexplain/backend/internal/retry"
)

const (
	// DefaultConcurrency is the number of clauses explained at once.
	DefaultConcurrency = 5
	// MaxConcurrency bounds the fan-out regardless of configuration.
	MaxConcurrency = 10

	maxQuestions = 3
)

// Input is one classified clause awaiting an explanation.
type Input struct {
	Index          int
	Text           string
	Classification document.Classification
	Risk           document.RiskAssessment
	// Language is the code explanations should be written in.
	Language string
}

// Result is the finished clause. Fallback is set when the static table was used and
// Err then carries the reason, if any.
type Result struct {
	Clause   document.Clause
	Fallback bool
	Err      error
}

// TypeSet reports which type labels the service may assign.
type TypeSet interface {
	Known(label string) bool
	Types() []string
}

// Options tunes an Orchestrator.
type Options struct {
	Concurrency int
	Policy      retry.Policy
	Types       TypeSet
}

// Orchestrator fans clause explanation requests out over a bounded pool.
type Orchestrator struct {
	generator ai.TextGenerator
	limit     int
	policy    retry.Policy
	types     TypeSet
}

// New builds an orchestrator. A nil generator means every clause gets the static
// explanation.
func New(generator ai.TextGenerator, opts Options) *Orchestrator {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if limit > MaxConcurrency {
		limit = MaxConcurrency
	}
	policy := opts.Policy
	if policy.Op == "" {
		policy.Op = "explain"
	}
	return &Orchestrator{generator: generator, limit: limit, policy: policy, types: opts.Types}
}

// Concurrency returns the effective fan-out limit.
func (o *Orchestrator) Concurrency() int { return o.limit }

// ExplainAll explains every input. It never fails: each clause is handled on its own
// and a failure only swaps that clause to its fallback. Results follow input order.
func (o *Orchestrator) ExplainAll(ctx context.Context, inputs []Input) []Result {
	results := make([]Result, len(inputs))

	var g errgroup.Group
	g.SetLimit(o.limit)
	for i := range inputs {
		i := i
		g.Go(func() error {
			results[i] = o.explain(ctx, inputs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) explain(ctx context.Context, in Input) Result {
	clause := document.Clause{
		Index:        in.Index,
		Text:         in.Text,
		Type:         in.Classification.Type,
		Confidence:   in.Classification.Confidence,
		RiskScore:    in.Risk.Score,
		RiskCategory: in.Risk.Category,
	}
	clause.Normalize()

	if o.generator == nil {
		return fallbackResult(clause, nil)
	}
	if err := ctx.Err(); err != nil {
		return fallbackResult(clause, err)
	}

	prompt := BuildPrompt(in, o.typeLabels())
	reply, err := retry.Do(ctx, o.policy, func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, prompt)
	})
	if err != nil {
		o.logFallback(in, err)
		return fallbackResult(clause, err)
	}

	parsed, err := ai.ParseJSON[explanationReply](reply)
	if err == nil {
		err = parsed.apply(&clause, o.types)
	}
	if err != nil {
		o.logFallback(in, err)
		return fallbackResult(clause, err)
	}
	return Result{Clause: clause}
}

func (o *Orchestrator) typeLabels() []string {
	if o.types == nil {
		return nil
	}
	return o.types.Types()
}

func (o *Orchestrator) logFallback(in Input, err error) {
	logrus.WithFields(logrus.Fields{
		"component": "explain",
		"clause":    in.Index,
		"type":      in.Classification.Type,
	}).WithError(err).Warn("clause explanation unavailable; using static fallback")
}

func fallbackResult(clause document.Clause, err error) Result {
	metrics.Fallbacks.WithLabelValues("explanation").Inc()
	canned := Fallback(clause.Type)
	clause.Explanation = canned.Explanation
	clause.SuggestedQuestions = canned.Questions
	return Result{Clause: clause, Fallback: true, Err: err}
}

type explanationReply struct {
	Type         string   `json:"type"`
	RiskScore    *int     `json:"riskScore"`
	RiskCategory string   `json:"riskCategory"`
	Explanation  string   `json:"explanation"`
	Questions    []string `json:"questions"`
}

// apply validates the reply and merges it into clause. Type and risk from the reply
// replace the heuristic values only when they are well formed.
func (r explanationReply) apply(clause *document.Clause, types TypeSet) error {
	explanation := strings.TrimSpace(r.Explanation)
	if explanation == "" {
		return fmt.Errorf("%w: explanation missing", ai.ErrParseFailed)
	}

	if label := strings.ToLower(strings.TrimSpace(r.Type)); label != "" && (types == nil || types.Known(label)) {
		clause.Type = label
	}
	if r.RiskScore != nil {
		clause.RiskScore = min(5, max(1, *r.RiskScore))
		category := strings.ToLower(strings.TrimSpace(r.RiskCategory))
		if !document.IsRiskCategory(category) {
			category = document.CategoryForScore(clause.RiskScore)
		}
		clause.RiskCategory = category
	}

	clause.Explanation = explanation
	questions := make([]string, 0, maxQuestions)
	for _, q := range r.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
		if len(questions) == maxQuestions {
			break
		}
	}
	if len(questions) == 0 {
		questions = Fallback(clause.Type).Questions
	}
	clause.SuggestedQuestions = questions
	clause.Normalize()
	return nil
}
