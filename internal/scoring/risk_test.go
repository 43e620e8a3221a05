package scoring

import (
	"testing"

	"lexplain/backend/internal/document"
)

func TestRiskScoring(t *testing.T) {
	scorer := DefaultRiskScorer()

	tests := []struct {
		name     string
		text     string
		score    int
		category string
	}{
		{"breach and forfeiture", breachForfeiture, 4, document.RiskHigh},
		{"single high keyword", "All deposits are forfeited.", 3, document.RiskHigh},
		{"many high keywords", "Upon breach the tenant shall forfeit the deposit, waive all defences, accept irrevocable eviction.", 5, document.RiskHigh},
		{"late fee", "The Tenant shall pay a late fee of $50.", 3, document.RiskMedium},
		{"notice only", terminationNotice, 2, document.RiskMedium},
		{"low signal", "Upon request a copy will be provided.", 1, document.RiskLow},
		{"no signal", "The sky is blue today.", 2, document.RiskLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := scorer.Assess(tc.text)
			if result.Score != tc.score || result.Category != tc.category {
				t.Fatalf("expected %d/%s got %d/%s", tc.score, tc.category, result.Score, result.Category)
			}
		})
	}
}

func TestRiskHighTierDominates(t *testing.T) {
	scorer := DefaultRiskScorer()
	texts := []string{
		"forfeit",
		"The borrower must pay interest, a late fee, insurance and maintenance charges or forfeit the collateral.",
		"Either party may, at its option and upon reasonable request, forfeit nothing but the deposit.",
	}
	for _, text := range texts {
		if got := scorer.Assess(text).Category; got != document.RiskHigh {
			t.Fatalf("expected high for %q, got %s", text, got)
		}
	}
}

func TestRiskScoreBounds(t *testing.T) {
	scorer := DefaultRiskScorer()
	texts := []string{"", terminationNotice, breachForfeiture, "interest deposit increase liability insurance repair maintenance obligation fee"}
	for _, text := range texts {
		result := scorer.Assess(text)
		if result.Score < 1 || result.Score > 5 || !document.IsRiskCategory(result.Category) {
			t.Fatalf("out of range assessment %+v for %q", result, text)
		}
		if result != scorer.Assess(text) {
			t.Fatalf("assessment of %q is not deterministic", text)
		}
	}
}

func TestLoadRiskScorer(t *testing.T) {
	path := tempJSON(t, RiskTiers{High: []string{"Guillotine"}, Medium: []string{"umbrella"}})
	scorer, err := LoadRiskScorer(path)
	if err != nil {
		t.Fatalf("load risk scorer: %v", err)
	}
	if got := scorer.Assess("a guillotine clause").Category; got != document.RiskHigh {
		t.Fatalf("expected high, got %s", got)
	}
	if got := scorer.Assess("bring an umbrella").Category; got != document.RiskMedium {
		t.Fatalf("expected medium, got %s", got)
	}
	if hits := scorer.HighKeywords("GUILLOTINE"); len(hits) != 1 {
		t.Fatalf("expected one high keyword, got %v", hits)
	}

	if _, err := NewRiskScorer(RiskTiers{Medium: []string{"x"}}); err == nil {
		t.Fatalf("expected error for missing high tier")
	}
}
