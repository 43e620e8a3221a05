// Package summary produces the sectioned markdown summary of a document, either from
// the generative service or deterministically from heuristic clause data.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/match"
	"lexplain/backend/internal/metrics"
	"lexplain/backend/internal/retry"
)

// Section headers every summary is organised under, in display order.
const (
	SectionParties     = "Parties"
	SectionFinancial   = "Financial Obligations"
	SectionRights      = "Rights and Obligations"
	SectionTermination = "Termination and Renewal"
	SectionRisks       = "Risks and Penalties"
)

const (
	headerMatchMinScore  = 0.8
	defaultMaxInputChars = 12000
)

// Sections lists the section headers in display order.
var Sections = []string{SectionParties, SectionFinancial, SectionRights, SectionTermination, SectionRisks}

// ValidationError reports a generated summary that does not have the required shape.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid summary: " + e.Reason
}

// Options tunes a Generator.
type Options struct {
	Policy        retry.Policy
	MaxInputChars int
}

// Generator requests document summaries from the generative service.
type Generator struct {
	generator ai.TextGenerator
	policy    retry.Policy
	maxInput  int
}

// New builds a generator. A nil text generator means Summarize always uses Fallback.
func New(generator ai.TextGenerator, opts Options) *Generator {
	policy := opts.Policy
	if policy.Op == "" {
		policy.Op = "summary"
	}
	maxInput := opts.MaxInputChars
	if maxInput <= 0 {
		maxInput = defaultMaxInputChars
	}
	return &Generator{generator: generator, policy: policy, maxInput: maxInput}
}

// Generate asks the service for a summary of text written in language.
// Replies without a recognizable section header yield a *ValidationError.
func (g *Generator) Generate(ctx context.Context, text, language string) (string, error) {
	if g == nil || g.generator == nil {
		return "", ai.ErrDisabled
	}
	prompt := g.buildPrompt(text, language)
	reply, err := retry.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		return g.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	out := ai.StripFences(reply)
	if _, err := Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

// Result is the outcome of Summarize.
type Result struct {
	Markdown string
	Fallback bool
	Err      error
}

// Summarize never fails: any generation or validation problem falls back to the
// deterministic summary built from clauses.
func (g *Generator) Summarize(ctx context.Context, text, language string, clauses []document.Clause) Result {
	if g == nil || g.generator == nil {
		metrics.Fallbacks.WithLabelValues("summary").Inc()
		return Result{Markdown: Fallback(clauses), Fallback: true}
	}
	out, err := g.Generate(ctx, text, language)
	if err != nil {
		logrus.WithFields(logrus.Fields{"component": "summary", "language": language}).
			WithError(err).Warn("summary generation failed; building fallback summary")
		metrics.Fallbacks.WithLabelValues("summary").Inc()
		return Result{Markdown: Fallback(clauses), Fallback: true, Err: err}
	}
	return Result{Markdown: out}
}

func (g *Generator) buildPrompt(text, code string) string {
	var b strings.Builder
	if directive := lang.Directive(code); directive != "" {
		b.WriteString(directive)
		b.WriteString("\n")
	}
	b.WriteString("Summarize the following agreement for a non-lawyer in markdown.\n")
	b.WriteString("Use exactly these level-two headings, in this order, and keep them in English:\n")
	for _, section := range Sections {
		fmt.Fprintf(&b, "## %s\n", section)
	}
	b.WriteString("Under each heading write short bullet points. If a section does not apply, say so in one bullet.\n")
	b.WriteString("Do not invent facts that are not in the text.\n\n")
	b.WriteString("Agreement:\n\"\"\"\n")
	b.WriteString(document.Truncate(text, g.maxInput))
	b.WriteString("\n\"\"\"\n")
	return b.String()
}

// Validate returns the canonical section names found in a markdown summary. Headers
// are markdown headings or bold lines compared case-insensitively with fuzzy matching;
// "/" and "&" read as "and". At least one recognised header is required.
func Validate(markdown string) ([]string, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, &ValidationError{Reason: "empty response"}
	}
	var found []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(markdown, "\n") {
		heading, ok := headingText(line)
		if !ok {
			continue
		}
		if section, ok := MatchSection(heading); ok && !seen[section] {
			seen[section] = true
			found = append(found, section)
		}
	}
	if len(found) == 0 {
		return nil, &ValidationError{Reason: "no recognised section headers"}
	}
	return found, nil
}

// MatchSection maps a heading onto the closest canonical section name.
func MatchSection(heading string) (string, bool) {
	candidate := canonicalHeading(heading)
	best, bestScore := "", 0.0
	for _, section := range Sections {
		score := match.Similarity(candidate, strings.ToLower(section))
		if score > bestScore {
			best, bestScore = section, score
		}
	}
	if bestScore >= headerMatchMinScore {
		return best, true
	}
	return "", false
}

func headingText(line string) (string, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "#"):
		return strings.TrimLeft(line, "# "), true
	case strings.HasPrefix(line, "**") && strings.HasSuffix(strings.TrimSuffix(line, ":"), "**") && len(line) > 4:
		return strings.Trim(line, "*: "), true
	}
	return "", false
}

func canonicalHeading(heading string) string {
	heading = strings.ToLower(strings.TrimSpace(heading))
	heading = strings.TrimSuffix(heading, ":")
	heading = strings.NewReplacer("/", " and ", "&", " and ").Replace(heading)
	return match.CollapseWhitespace(heading)
}
