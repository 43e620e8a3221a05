package explain

import "lexplain/backend/internal/document"

// Canned is a static explanation used when the generative service cannot help.
type Canned struct {
	Explanation string
	Questions   []string
}

var fallbacks = map[string]Canned{
	document.TypeTermination: {
		Explanation: "This clause explains how and when the agreement can be ended, including any notice you or the other party must give.",
		Questions: []string{
			"How much notice do I need to give to end the agreement?",
			"Are there any costs if I end the agreement early?",
			"Can the other party end the agreement without a reason?",
		},
	},
	document.TypePayment: {
		Explanation: "This clause sets out what you must pay, how much, and when payments are due.",
		Questions: []string{
			"What is the total amount I will pay over the full term?",
			"What happens if a payment is late?",
			"Which payment methods are accepted?",
		},
	},
	document.TypePenalty: {
		Explanation: "This clause describes penalties or losses you may face if you break the agreement.",
		Questions: []string{
			"What exactly counts as a breach under this clause?",
			"Is the penalty amount fixed or can it grow?",
			"Can a penalty be waived or disputed?",
		},
	},
	document.TypeRenewal: {
		Explanation: "This clause explains whether the agreement continues or renews after the initial term.",
		Questions: []string{
			"Does the agreement renew automatically?",
			"How do I opt out before renewal?",
			"Can the price change when the agreement renews?",
		},
	},
	document.TypeLiability: {
		Explanation: "This clause decides who is responsible for losses or damage and how far that responsibility goes.",
		Questions: []string{
			"Is there a cap on what I could be liable for?",
			"Am I responsible for damage caused by others?",
			"Do I need insurance to cover this liability?",
		},
	},
	document.TypeConfidentiality: {
		Explanation: "This clause limits what information can be shared and with whom.",
		Questions: []string{
			"What information is treated as confidential?",
			"How long does the confidentiality obligation last?",
			"What happens if information is disclosed by accident?",
		},
	},
	document.TypeWarranty: {
		Explanation: "This clause states what is promised about the quality or condition of goods or services.",
		Questions: []string{
			"What does the warranty cover and for how long?",
			"What must I do to make a warranty claim?",
			"Are any warranties excluded?",
		},
	},
	document.TypeInsurance: {
		Explanation: "This clause requires insurance cover and explains who must hold it.",
		Questions: []string{
			"What type and amount of insurance do I need?",
			"Do I need to show proof of insurance?",
			"What happens if my insurance lapses?",
		},
	},
	document.TypeMaintenance: {
		Explanation: "This clause explains who must keep the property or equipment in good condition and pay for repairs.",
		Questions: []string{
			"Which repairs am I responsible for?",
			"How quickly must repairs be reported or completed?",
			"Who pays for normal wear and tear?",
		},
	},
	document.TypeUse: {
		Explanation: "This clause limits how the property, goods or services may be used.",
		Questions: []string{
			"What uses are not allowed?",
			"Can I let someone else use or occupy it?",
			"What happens if the permitted use is exceeded?",
		},
	},
	document.TypeNotice: {
		Explanation: "This clause explains how formal notices must be given between the parties.",
		Questions: []string{
			"Which address or channel must notices be sent to?",
			"When is a notice considered received?",
			"Is email accepted as written notice?",
		},
	},
	document.TypeAssignment: {
		Explanation: "This clause controls whether the agreement can be transferred to someone else.",
		Questions: []string{
			"Can the other party transfer the agreement without my consent?",
			"Can I transfer my rights or obligations?",
			"Do my terms change if the agreement is transferred?",
		},
	},
	document.TypeCollateral: {
		Explanation: "This clause describes property pledged as security and what can happen to it if you do not pay.",
		Questions: []string{
			"Which of my assets are used as security?",
			"When can the lender take the collateral?",
			"How is the collateral released once I repay?",
		},
	},
	document.TypeInterest: {
		Explanation: "This clause explains how interest is charged and calculated.",
		Questions: []string{
			"Is the interest rate fixed or variable?",
			"How is interest calculated and how often is it charged?",
			"What is the total interest cost over the term?",
		},
	},
	document.TypeDefault: {
		Explanation: "This clause lists what counts as a default and what the other party may do if one occurs.",
		Questions: []string{
			"What events put me in default?",
			"Is there a grace period to fix a default?",
			"What remedies can the other party use after a default?",
		},
	},
	document.TypeRepayment: {
		Explanation: "This clause sets out how borrowed money must be repaid.",
		Questions: []string{
			"What is the repayment schedule?",
			"Can I repay early, and is there a fee for doing so?",
			"What happens if I miss a repayment?",
		},
	},
	document.TypeGeneral: {
		Explanation: "This clause sets out general terms of the agreement. Read it carefully and ask for clarification on anything unclear.",
		Questions: []string{
			"What does this clause require me to do?",
			"Does this clause limit any of my rights?",
			"Are there costs or deadlines connected to this clause?",
		},
	},
}

// Fallback returns the canned explanation for clauseType, or the general entry.
// The returned questions slice is a copy.
func Fallback(clauseType string) Canned {
	canned, ok := fallbacks[clauseType]
	if !ok {
		canned = fallbacks[document.TypeGeneral]
	}
	return Canned{
		Explanation: canned.Explanation,
		Questions:   append([]string(nil), canned.Questions...),
	}
}
