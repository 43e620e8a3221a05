package match

import "testing"

func TestContainsKeyword(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keyword  string
		expected bool
	}{
		{"exact", "breach of contract", "breach", true},
		{"suffix allowed", "forfeiture of deposits", "forfeit", true},
		{"mid-word rejected", "the prepayment schedule", "payment", false},
		{"later occurrence", "prepayment and payment terms", "payment", true},
		{"after punctuation", "(renewal) clause", "renewal", true},
		{"phrase", "thirty days written notice", "written notice", true},
		{"absent", "nothing relevant", "penalty", false},
		{"empty keyword", "anything", "", false},
		{"whole word", "the apr is 5%", "apr$", true},
		{"whole word at end", "variable apr", "apr$", true},
		{"whole word rejects longer word", "rent is due on april 1", "apr$", false},
		{"whole word later occurrence", "april rate, apr 5%", "apr$", true},
		{"bare suffix", "anything", "$", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContainsKeyword(tc.text, tc.keyword); got != tc.expected {
				t.Fatalf("ContainsKeyword(%q, %q) = %v, want %v", tc.text, tc.keyword, got, tc.expected)
			}
		})
	}
}

func TestKeywordWeight(t *testing.T) {
	tests := []struct {
		keyword  string
		expected int
	}{
		{"terminate", 3},
		{"notice", 2},
		{"lease", 2},
		{"fee", 1},
		{"term", 1},
		{"apr$", 1},
	}
	for _, tc := range tests {
		if got := KeywordWeight(tc.keyword); got != tc.expected {
			t.Fatalf("KeywordWeight(%q) = %d, want %d", tc.keyword, got, tc.expected)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	in := "  Section 1.\r\nThe  Tenant\t shall pay.\r\n\r\nSection 2.  "
	want := "Section 1.\nThe Tenant shall pay.\n\nSection 2."
	if got := NormalizeText(in); got != want {
		t.Fatalf("NormalizeText = %q, want %q", got, want)
	}
}

func TestMatchedKeywordsDedupes(t *testing.T) {
	got := MatchedKeywords("late fee and late fee again", []string{"late fee", "late fee", "interest"})
	if len(got) != 1 || got[0] != "late fee" {
		t.Fatalf("unexpected matches %v", got)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b     string
		expected float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"parties", "parties", 1},
		{"kitten", "sitting", 1 - 3.0/7},
		{"termination and renewal", "terminaton and renewal", 1 - 1.0/23},
	}
	for _, tc := range tests {
		got := Similarity(tc.a, tc.b)
		if diff := got - tc.expected; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.expected)
		}
	}
}
