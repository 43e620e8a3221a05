package scoring

import "lexplain/backend/internal/document"

// OverallResult rolls clause risks up to a document-level reading.
type OverallResult struct {
	Category    string  `json:"overall_risk"`
	HighCount   int     `json:"high_risk_clauses"`
	MediumCount int     `json:"medium_risk_clauses"`
	LowCount    int     `json:"low_risk_clauses"`
	MeanScore   float64 `json:"mean_risk_score"`
}

// CombineClauses applies the document matrix: any high clause makes the document
// high, two or more medium clauses or a mean score of 3 make it medium.
func CombineClauses(clauses []document.Clause) OverallResult {
	var out OverallResult
	if len(clauses) == 0 {
		out.Category = document.RiskLow
		return out
	}
	total := 0
	for _, clause := range clauses {
		total += clause.RiskScore
		switch clause.RiskCategory {
		case document.RiskHigh:
			out.HighCount++
		case document.RiskMedium:
			out.MediumCount++
		default:
			out.LowCount++
		}
	}
	out.MeanScore = round2(float64(total) / float64(len(clauses)))

	switch {
	case out.HighCount > 0:
		out.Category = document.RiskHigh
	case out.MediumCount >= 2 || out.MeanScore >= 3:
		out.Category = document.RiskMedium
	default:
		out.Category = document.RiskLow
	}
	return out
}
