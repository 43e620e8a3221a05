package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"lexplain/backend/internal/document"
	"lexplain/backend/internal/match"
)

const (
	unmatchedConfidence = 0.4
	baseConfidence      = 0.5
	confidencePerPoint  = 0.08
	maxConfidence       = 0.95
)

// Classifier assigns clause types from an ordered keyword table.
type Classifier struct {
	rules []TypeRule
}

// NewClassifier builds a classifier from rules, keeping their order.
func NewClassifier(rules []TypeRule) (*Classifier, error) {
	cleaned := make([]TypeRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		label := strings.ToLower(strings.TrimSpace(rule.Type))
		if label == "" {
			return nil, errors.New("type rule without a type label")
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate type rule %q", label)
		}
		seen[label] = struct{}{}
		var weights map[string]int
		for keyword, weight := range rule.Weights {
			if weight <= 0 {
				return nil, fmt.Errorf("type rule %q: keyword %q has non-positive weight", label, keyword)
			}
			if weights == nil {
				weights = make(map[string]int, len(rule.Weights))
			}
			weights[match.NormalizeKeyword(keyword)] = weight
		}
		cleaned = append(cleaned, TypeRule{Type: label, Keywords: normalizeKeywords(rule.Keywords), Weights: weights})
	}
	if len(cleaned) == 0 {
		return nil, errors.New("classifier table is empty")
	}
	return &Classifier{rules: cleaned}, nil
}

// DefaultClassifier returns the classifier over the built-in table.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultTypeRules())
	if err != nil {
		panic(fmt.Sprintf("default classifier table: %v", err))
	}
	return c
}

// LoadClassifier reads an ordered JSON array of type rules.
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read classifier table: %w", err)
	}
	var rules []TypeRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("unmarshal classifier table: %w", err)
	}
	return NewClassifier(rules)
}

// Classify returns the best matching type. It never fails: unmatched text is
// classified as general with low confidence.
func (c *Classifier) Classify(text string) document.Classification {
	if c == nil {
		return document.Classification{Type: document.TypeGeneral, Confidence: unmatchedConfidence}
	}
	folded := match.Fold(text)

	bestType := document.TypeGeneral
	bestScore := 0
	for _, rule := range c.rules {
		score := 0
		for _, keyword := range match.MatchedKeywords(folded, rule.Keywords) {
			score += rule.weight(keyword)
		}
		// strictly greater: ties keep the earlier rule
		if score > bestScore {
			bestScore = score
			bestType = rule.Type
		}
	}

	if bestScore == 0 {
		return document.Classification{Type: document.TypeGeneral, Confidence: unmatchedConfidence}
	}
	confidence := math.Min(maxConfidence, baseConfidence+confidencePerPoint*float64(bestScore))
	return document.Classification{Type: bestType, Confidence: round2(confidence)}
}

// Types lists the labels in table order, followed by general.
func (c *Classifier) Types() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, rule := range c.rules {
		out = append(out, rule.Type)
	}
	return append(out, document.TypeGeneral)
}

// Known reports whether label is a type this classifier can produce.
func (c *Classifier) Known(label string) bool {
	if label == document.TypeGeneral {
		return true
	}
	for _, rule := range c.rules {
		if rule.Type == label {
			return true
		}
	}
	return false
}

func (r TypeRule) weight(keyword string) int {
	if w, ok := r.Weights[keyword]; ok {
		return w
	}
	return match.KeywordWeight(keyword)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
