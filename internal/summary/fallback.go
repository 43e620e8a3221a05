package summary

import (
	"fmt"
	"strings"

	"lexplain/backend/internal/document"
	"lexplain/backend/internal/scoring"
)

const excerptLength = 160

var sectionForType = map[string]string{
	document.TypeGeneral:         SectionParties,
	document.TypeAssignment:      SectionParties,
	document.TypeNotice:          SectionParties,
	document.TypePayment:         SectionFinancial,
	document.TypeInterest:        SectionFinancial,
	document.TypeRepayment:       SectionFinancial,
	document.TypeCollateral:      SectionFinancial,
	document.TypeInsurance:       SectionFinancial,
	document.TypeUse:             SectionRights,
	document.TypeMaintenance:     SectionRights,
	document.TypeConfidentiality: SectionRights,
	document.TypeWarranty:        SectionRights,
	document.TypeLiability:       SectionRights,
	document.TypeTermination:     SectionTermination,
	document.TypeRenewal:         SectionTermination,
	document.TypePenalty:         SectionRisks,
	document.TypeDefault:         SectionRisks,
}

// Fallback builds the five-section summary from clause heuristics alone. High risk
// clauses are also listed under Risks and Penalties.
func Fallback(clauses []document.Clause) string {
	bullets := make(map[string][]string, len(Sections))
	for _, clause := range clauses {
		section, ok := sectionForType[clause.Type]
		if !ok {
			section = SectionParties
		}
		line := bullet(clause)
		bullets[section] = append(bullets[section], line)
		if clause.RiskCategory == document.RiskHigh && section != SectionRisks {
			bullets[SectionRisks] = append(bullets[SectionRisks], line)
		}
	}

	overall := scoring.CombineClauses(clauses)
	var b strings.Builder
	fmt.Fprintf(&b, "Overall risk: %s (%d high, %d medium, %d low risk clauses)\n",
		overall.Category, overall.HighCount, overall.MediumCount, overall.LowCount)
	for _, section := range Sections {
		fmt.Fprintf(&b, "\n## %s\n", section)
		lines := bullets[section]
		if len(lines) == 0 {
			b.WriteString("- No specific clauses identified.\n")
			continue
		}
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func bullet(clause document.Clause) string {
	text := strings.Join(strings.Fields(clause.Text), " ")
	excerpt := document.Truncate(text, excerptLength)
	if excerpt != text {
		excerpt += "..."
	}
	return fmt.Sprintf("- Clause %d (%s, %s risk): %s", clause.Index+1, clause.Type, clause.RiskCategory, excerpt)
}
