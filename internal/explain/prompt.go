package explain

import (
	"fmt"
	"strings"

	"lexplain/backend/internal/lang"
)

// BuildPrompt renders the clause explanation request.
func BuildPrompt(in Input, types []string) string {
	var b strings.Builder
	if directive := lang.Directive(in.Language); directive != "" {
		b.WriteString(directive)
		b.WriteString("\n")
	}
	b.WriteString("Explain one clause of a legal or financial agreement to a non-lawyer.\n")
	fmt.Fprintf(&b, "Heuristic clause type: %s (confidence %.2f)\n", in.Classification.Type, in.Classification.Confidence)
	fmt.Fprintf(&b, "Heuristic risk: %d of 5 (%s)\n", in.Risk.Score, in.Risk.Category)
	if len(types) > 0 {
		fmt.Fprintf(&b, "Allowed types: %s\n", strings.Join(types, ", "))
	}
	b.WriteString("Reply with a JSON object with keys type, riskScore (integer 1-5), riskCategory (low, medium or high), ")
	b.WriteString("explanation (two or three plain sentences) and questions (up to three questions the reader should ask before signing).\n")
	b.WriteString("Correct the heuristic type or risk only when the clause clearly supports it.\n\n")
	b.WriteString("Clause:\n\"\"\"\n")
	b.WriteString(in.Text)
	b.WriteString("\n\"\"\"\n")
	return b.String()
}
