package scoring

import "lexplain/backend/internal/document"

// TypeRule binds a clause type to the keywords that signal it. Rules are evaluated in
// slice order and the order is the tie-break: on equal scores the earlier rule wins.
// Weights overrides the length-based weight for individual keywords.
type TypeRule struct {
	Type     string         `json:"type"`
	Keywords []string       `json:"keywords"`
	Weights  map[string]int `json:"weights,omitempty"`
}

// RiskTiers holds the keyword lists for each risk tier.
type RiskTiers struct {
	High   []string `json:"high"`
	Medium []string `json:"medium"`
	Low    []string `json:"low"`
}

// DefaultTypeRules is the built-in clause type table.
func DefaultTypeRules() []TypeRule {
	return []TypeRule{
		{Type: document.TypeTermination, Keywords: []string{"terminate", "termination", "terminated", "cancel", "cancellation", "end this agreement", "expire", "expiration", "written notice", "notice period"}},
		{Type: document.TypePayment, Keywords: []string{"payment", "pay", "rent", "fee", "invoice", "price", "amount due", "installment", "billing", "remit"}},
		{Type: document.TypePenalty, Keywords: []string{"penalty", "penalties", "forfeit", "breach", "liquidated damages", "fine", "late charge", "surcharge"}},
		{Type: document.TypeRenewal, Keywords: []string{"renew", "renewal", "auto-renew", "automatically renew", "extension", "extend", "successive term"}},
		{Type: document.TypeLiability, Keywords: []string{"liability", "liable", "indemnify", "indemnification", "damages", "hold harmless", "responsible for"}},
		{Type: document.TypeConfidentiality, Keywords: []string{"confidential", "confidentiality", "non-disclosure", "disclose", "proprietary", "trade secret"}},
		{Type: document.TypeWarranty, Keywords: []string{"warranty", "warrant", "guarantee", "as is", "merchantability", "fitness for a particular purpose"}},
		{Type: document.TypeInsurance, Keywords: []string{"insurance", "insure", "insured", "policy", "coverage", "premium"}},
		{Type: document.TypeMaintenance, Keywords: []string{"maintenance", "maintain", "repair", "repairs", "upkeep", "good condition", "wear and tear"}},
		{Type: document.TypeUse, Keywords: []string{"use of", "permitted use", "premises", "occupancy", "occupy", "residential purposes", "sublet"}},
		{Type: document.TypeNotice, Keywords: []string{"notice", "notify", "notification", "in writing", "address for notices"}},
		{Type: document.TypeAssignment, Keywords: []string{"assign", "assignment", "transfer", "successors", "delegate"}},
		{Type: document.TypeCollateral, Keywords: []string{"collateral", "security interest", "pledge", "lien", "secured by", "mortgage"}},
		{Type: document.TypeInterest, Keywords: []string{"interest", "interest rate", "apr$", "annual percentage rate", "accrue", "compounded"}},
		{Type: document.TypeDefault, Keywords: []string{"default", "event of default", "defaults", "failure to pay", "insolvency", "bankruptcy"}},
		{Type: document.TypeRepayment, Keywords: []string{"repay", "repayment", "prepay", "prepayment", "principal", "amortization", "outstanding balance"}},
	}
}

// DefaultRiskTiers is the built-in risk keyword table.
func DefaultRiskTiers() RiskTiers {
	return RiskTiers{
		High: []string{
			"forfeit", "breach", "penalty", "immediate termination", "terminate immediately",
			"liquidated damages", "indemnify", "unlimited liability", "waive", "waiver",
			"irrevocable", "repossess", "seize", "acceleration", "accelerate", "eviction", "evict",
			"sole discretion", "without notice", "personal guarantee", "jointly and severally",
		},
		Medium: []string{
			"late fee", "late charge", "interest", "deposit", "automatic renewal", "automatically renew",
			"auto-renew", "increase", "liable", "liability", "insurance", "repair", "maintenance",
			"obligation", "shall", "must", "notice", "assign", "default", "fee",
		},
		Low: []string{
			"may", "option", "reasonable", "mutual", "mutually", "either party", "upon request",
			"standard", "customary", "courtesy",
		},
	}
}
