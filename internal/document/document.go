package document

import (
	"strings"
	"time"
)

// Clause type labels, in classification table order.
const (
	TypeTermination     = "termination"
	TypePayment         = "payment"
	TypePenalty         = "penalty"
	TypeRenewal         = "renewal"
	TypeLiability       = "liability"
	TypeConfidentiality = "confidentiality"
	TypeWarranty        = "warranty"
	TypeInsurance       = "insurance"
	TypeMaintenance     = "maintenance"
	TypeUse             = "use"
	TypeNotice          = "notice"
	TypeAssignment      = "assignment"
	TypeCollateral      = "collateral"
	TypeInterest        = "interest"
	TypeDefault         = "default"
	TypeRepayment       = "repayment"
	TypeGeneral         = "general"
)

// Risk categories.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// DefaultLanguage is assumed whenever detection fails or no language is given.
const DefaultLanguage = "en"

// MaxClauseLength bounds the display length of a clause's source text.
const MaxClauseLength = 1000

// Document is the extracted input of one pipeline invocation.
type Document struct {
	ID                 string  `json:"id"`
	Text               string  `json:"-"`
	Language           string  `json:"language"`
	LanguageConfidence float64 `json:"language_confidence"`
}

// Classification is the heuristic clause type.
type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// RiskAssessment is the heuristic clause risk.
type RiskAssessment struct {
	Score    int    `json:"score"`
	Category string `json:"category"`
}

// Clause is one analyzed excerpt of a document.
type Clause struct {
	Index              int      `json:"index"`
	Text               string   `json:"text"`
	Type               string   `json:"type"`
	Confidence         float64  `json:"confidence"`
	RiskScore          int      `json:"risk_score"`
	RiskCategory       string   `json:"risk_category"`
	Explanation        string   `json:"explanation"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

// Normalize enforces the clause invariants: a bounded source text, a type and a
// risk category that are never empty, and a risk score within 1..5.
func (c *Clause) Normalize() {
	c.Text = Truncate(c.Text, MaxClauseLength)
	if strings.TrimSpace(c.Type) == "" {
		c.Type = TypeGeneral
	}
	if !IsRiskCategory(c.RiskCategory) {
		c.RiskCategory = RiskMedium
	}
	if c.RiskScore < 1 {
		c.RiskScore = 1
	}
	if c.RiskScore > 5 {
		c.RiskScore = 5
	}
	if c.SuggestedQuestions == nil {
		c.SuggestedQuestions = []string{}
	}
}

// Bundle is the full per-language output for one document.
type Bundle struct {
	DocumentID         string    `json:"document_id"`
	Language           string    `json:"language"`
	SourceLanguage     string    `json:"source_language"`
	Summary            string    `json:"summary"`
	Clauses            []Clause  `json:"clauses"`
	SuggestedQuestions []string  `json:"suggested_questions"`
	ProcessingTimeMs   int64     `json:"processing_time_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// Clone returns a deep copy so translated variants never share slices with the source.
func (b Bundle) Clone() Bundle {
	out := b
	out.Clauses = make([]Clause, len(b.Clauses))
	for i, clause := range b.Clauses {
		clause.SuggestedQuestions = append([]string{}, clause.SuggestedQuestions...)
		out.Clauses[i] = clause
	}
	out.SuggestedQuestions = append([]string{}, b.SuggestedQuestions...)
	return out
}

// IsRiskCategory reports whether value is one of the known categories.
func IsRiskCategory(value string) bool {
	switch value {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// CategoryForScore maps a bare 1..5 score onto a category.
func CategoryForScore(score int) string {
	switch {
	case score >= 4:
		return RiskHigh
	case score == 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
