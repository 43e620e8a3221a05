package match

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	aRunes := []rune(a)
	bRunes := []rune(b)
	if len(aRunes) == 0 && len(bRunes) == 0 {
		return 1
	}
	if len(aRunes) == 0 || len(bRunes) == 0 {
		return 0
	}

	dist := levenshtein(aRunes, bRunes)
	maxLen := max(len(aRunes), len(bRunes))
	score := 1 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// levenshtein keeps two rows of the edit-distance table.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for c := range prev {
		prev[c] = c
	}
	for r := 1; r <= len(a); r++ {
		curr[0] = r
		for c := 1; c <= len(b); c++ {
			cost := 1
			if a[r-1] == b[c-1] {
				cost = 0
			}
			curr[c] = min(prev[c]+1, curr[c-1]+1, prev[c-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
