// Package segment splits extracted document text into bounded clause candidates.
//
// Segmentation is a cascade of cheap heuristics; the first strategy that yields
// enough usable chunks wins. It never performs I/O and always returns at least one
// clause for non-empty input.
package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"lexplain/backend/internal/match"
)

const (
	// MaxClauses caps the number of clauses per document.
	MaxClauses = 15
	// MinClauseLength is the shortest usable clause after whitespace normalization.
	MinClauseLength = 40
	// MaxClauseLength bounds each clause.
	MaxClauseLength = 1000

	minWinningChunks  = 4
	minStructuralLen  = 50
	minSentenceLen    = 80
	windowSize        = 400
	fallbackPrefixLen = 500
)

var (
	// Numbered or lettered section markers at the start of a line:
	// "Article 4", "SECTION 2.1", "Clause 7:", "3.", "1.2)", "(a)", "b)", "A."
	structuralMarker = regexp.MustCompile(`(?mi)^(?:(?:article|section|clause)\s+[0-9ivxlc]+(?:\.[0-9]+)*[.:)]?|\d+(?:\.\d+)+[.)]?|\d+[.)]|\([a-z0-9]{1,3}\)|[a-z][.)])\s`)
	blankLines       = regexp.MustCompile(`\n\s*\n`)
)

// Split segments text into 1..MaxClauses clause strings of at most MaxClauseLength
// characters each.
func Split(text string) []string {
	normalized := match.NormalizeText(text)
	if normalized == "" {
		return nil
	}

	strategies := []func(string) []string{
		byStructure,
		bySentences,
		byParagraphs,
	}
	for _, strategy := range strategies {
		if chunks := finalize(strategy(normalized)); len(chunks) >= minWinningChunks {
			return chunks
		}
	}

	if chunks := finalize(byWindows(normalized)); len(chunks) > 0 {
		return chunks
	}

	return []string{prefix(match.CollapseWhitespace(normalized), fallbackPrefixLen)}
}

func byStructure(text string) []string {
	locs := structuralMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	var chunks []string
	if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
		chunks = append(chunks, head)
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		chunks = append(chunks, text[loc[0]:end])
	}
	return keepLonger(chunks, minStructuralLen)
}

func bySentences(text string) []string {
	sentences := splitSentences(match.CollapseWhitespace(text))
	long := keepLonger(sentences, minSentenceLen)
	if len(long) >= minWinningChunks {
		return long
	}
	var paired []string
	for i := 0; i < len(sentences); i += 2 {
		if i+1 < len(sentences) {
			paired = append(paired, sentences[i]+" "+sentences[i+1])
			continue
		}
		paired = append(paired, sentences[i])
	}
	return keepLonger(paired, MinClauseLength)
}

// splitSentences cuts after '.', '!', '?' or ';' when followed by whitespace and an
// uppercase letter.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?', ';':
		default:
			continue
		}
		j := i + 1
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j < len(runes) && unicode.IsUpper(runes[j]) {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = j
			i = j - 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func byParagraphs(text string) []string {
	return keepLonger(blankLines.Split(text, -1), MinClauseLength)
}

// byWindows chunks on word boundaries into windows of about windowSize characters.
// A short tail is merged into the previous window.
func byWindows(text string) []string {
	words := strings.Fields(text)
	var (
		chunks  []string
		current strings.Builder
	)
	for _, word := range words {
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(word) > windowSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		tail := current.String()
		if n := len(chunks); n > 0 && utf8.RuneCountInString(tail) < MinClauseLength {
			chunks[n-1] = chunks[n-1] + " " + tail
		} else {
			chunks = append(chunks, tail)
		}
	}
	return chunks
}

// finalize normalizes whitespace, enforces the length window and the clause cap.
func finalize(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = match.CollapseWhitespace(chunk)
		if utf8.RuneCountInString(chunk) < MinClauseLength {
			continue
		}
		out = append(out, prefix(chunk, MaxClauseLength))
		if len(out) == MaxClauses {
			break
		}
	}
	return out
}

func keepLonger(chunks []string, min int) []string {
	var out []string
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if utf8.RuneCountInString(match.CollapseWhitespace(chunk)) > min {
			out = append(out, chunk)
		}
	}
	return out
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
