package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lexplain/backend/internal/document"
	"lexplain/backend/internal/match"
)

const (
	mediumThreshold = 2
	defaultLowScore = 2
	matchedLowScore = 1
)

// RiskScorer evaluates clause text against tiered risk keyword lists.
type RiskScorer struct {
	high   []string
	medium []string
	low    []string
}

// NewRiskScorer normalizes the tier lists.
func NewRiskScorer(tiers RiskTiers) (*RiskScorer, error) {
	r := &RiskScorer{
		high:   normalizeKeywords(tiers.High),
		medium: normalizeKeywords(tiers.Medium),
		low:    normalizeKeywords(tiers.Low),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// DefaultRiskScorer returns the scorer over the built-in tiers.
func DefaultRiskScorer() *RiskScorer {
	r, err := NewRiskScorer(DefaultRiskTiers())
	if err != nil {
		panic(fmt.Sprintf("default risk tiers: %v", err))
	}
	return r
}

// LoadRiskScorer constructs a risk scorer from the provided JSON file.
func LoadRiskScorer(path string) (*RiskScorer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read risk tiers: %w", err)
	}
	var tiers RiskTiers
	if err := json.Unmarshal(data, &tiers); err != nil {
		return nil, fmt.Errorf("unmarshal risk tiers: %w", err)
	}
	return NewRiskScorer(tiers)
}

// Assess scores clause text. Tiers are checked high to low and the first tier with a
// signal decides; any high keyword makes the clause high risk.
func (r *RiskScorer) Assess(text string) document.RiskAssessment {
	if r == nil {
		return document.RiskAssessment{Score: defaultLowScore, Category: document.RiskLow}
	}
	folded := match.Fold(text)

	if hits := match.MatchedKeywords(folded, r.high); len(hits) > 0 {
		return document.RiskAssessment{Score: min(5, 3+len(hits)/2), Category: document.RiskHigh}
	}

	weight := 0
	for _, hit := range match.MatchedKeywords(folded, r.medium) {
		weight += match.KeywordWeight(hit)
	}
	if weight >= mediumThreshold {
		return document.RiskAssessment{Score: max(2, min(4, 2+weight/4)), Category: document.RiskMedium}
	}

	if len(match.MatchedKeywords(folded, r.low)) > 0 {
		return document.RiskAssessment{Score: matchedLowScore, Category: document.RiskLow}
	}
	return document.RiskAssessment{Score: defaultLowScore, Category: document.RiskLow}
}

// HighKeywords returns the matched high tier keywords, used to flag clauses in summaries.
func (r *RiskScorer) HighKeywords(text string) []string {
	if r == nil {
		return nil
	}
	return match.MatchedKeywords(match.Fold(text), r.high)
}

// Validate ensures the scorer has at least a high tier.
func (r *RiskScorer) Validate() error {
	if r == nil {
		return errors.New("risk scorer is nil")
	}
	if len(r.high) == 0 {
		return errors.New("high risk keywords missing")
	}
	return nil
}

func normalizeKeywords(in []string) []string {
	var out []string
	for _, keyword := range in {
		if keyword = match.NormalizeKeyword(keyword); keyword != "" {
			out = append(out, keyword)
		}
	}
	return out
}
