package match

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun = regexp.MustCompile(`[ \t\f\v\x{00A0}\x{2000}-\x{200B}]+`)
	lineBreaks    = regexp.MustCompile(`\r\n?`)
)

// NormalizeText canonicalizes extracted text: NFC composition, unix line endings and
// collapsed horizontal whitespace. Line structure is kept for paragraph detection.
func NormalizeText(input string) string {
	out := norm.NFC.String(input)
	out = lineBreaks.ReplaceAllString(out, "\n")
	out = whitespaceRun.ReplaceAllString(out, " ")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// CollapseWhitespace folds every whitespace run, including newlines, into one space.
func CollapseWhitespace(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// Fold lowercases text for keyword matching.
func Fold(input string) string {
	return strings.ToLower(CollapseWhitespace(input))
}

// ContainsKeyword reports whether keyword occurs in folded text starting at a word
// boundary. The end of the keyword is left open so "forfeit" matches "forfeiture",
// unless the keyword carries the WholeWord suffix. Both arguments must already be
// folded.
func ContainsKeyword(folded, keyword string) bool {
	whole := strings.HasSuffix(keyword, WholeWord)
	keyword = strings.TrimSuffix(keyword, WholeWord)
	if keyword == "" {
		return false
	}
	offset := 0
	for offset < len(folded) {
		idx := strings.Index(folded[offset:], keyword)
		if idx < 0 {
			return false
		}
		pos := offset + idx
		end := pos + len(keyword)
		if isBoundaryBefore(folded, pos) && (!whole || isBoundaryAfter(folded, end)) {
			return true
		}
		offset = pos + 1
	}
	return false
}

// WholeWord marks a keyword that must also end at a word boundary, for short
// abbreviations such as "apr$".
const WholeWord = "$"

func isBoundaryBefore(s string, pos int) bool {
	if pos == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(s[:pos])
	return !unicode.IsLetter(prev) && !unicode.IsDigit(prev)
}

func isBoundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(s[end:])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

// MatchedKeywords returns the keywords present in folded text, in list order.
func MatchedKeywords(folded string, keywords []string) []string {
	var out []string
	for _, keyword := range keywords {
		if ContainsKeyword(folded, keyword) {
			out = appendUnique(out, keyword)
		}
	}
	return out
}

// KeywordWeight is the length-based weight of a keyword.
func KeywordWeight(keyword string) int {
	n := utf8.RuneCountInString(strings.TrimSuffix(keyword, WholeWord))
	switch {
	case n > 6:
		return 3
	case n > 4:
		return 2
	default:
		return 1
	}
}

// NormalizeKeyword lowercases and trims a configured keyword.
func NormalizeKeyword(keyword string) string {
	return Fold(keyword)
}

func appendUnique(s []string, v string) []string {
	if v == "" {
		return s
	}
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}
