// Package lang detects document languages and canonicalizes language codes.
package lang

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"lexplain/backend/internal/document"
)

// DefaultConfidence is reported when detection fails and the default language is used.
const DefaultConfidence = 0.5

// ErrUndetermined is returned when the text carries too little signal.
var ErrUndetermined = errors.New("language could not be determined")

// Result is a detected language with a 0..1 confidence.
type Result struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Detector identifies the language of a text.
type Detector interface {
	Detect(ctx context.Context, text string) (Result, error)
}

// DetectOrDefault makes a single detection attempt and falls back to English at
// DefaultConfidence on any failure.
func DetectOrDefault(ctx context.Context, detector Detector, text string) Result {
	if detector == nil {
		return Result{Language: document.DefaultLanguage, Confidence: DefaultConfidence}
	}
	result, err := detector.Detect(ctx, text)
	if err != nil || result.Language == "" {
		if err != nil {
			logrus.WithError(err).Debug("language detection failed; using default")
		}
		return Result{Language: document.DefaultLanguage, Confidence: DefaultConfidence}
	}
	return result
}

// Normalize canonicalizes a language tag to its ISO 639 base code ("pt-BR" -> "pt").
// Unknown or empty input yields ok=false.
func Normalize(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", false
	}
	return base.String(), true
}

// NormalizeOrDefault is Normalize with the default language as fallback.
func NormalizeOrDefault(code string) string {
	if normalized, ok := Normalize(code); ok {
		return normalized
	}
	return document.DefaultLanguage
}

// DisplayName returns the English name of a language code, or the code itself.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// StopwordDetector scores texts by function-word frequency.
type StopwordDetector struct {
	stopwords map[string]map[string]struct{}
	minHits   int
}

// NewStopwordDetector returns a detector covering en, es, fr, de, pt, it and nl.
func NewStopwordDetector() *StopwordDetector {
	sets := make(map[string]map[string]struct{}, len(stopwordLists))
	for code, words := range stopwordLists {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		sets[code] = set
	}
	return &StopwordDetector{stopwords: sets, minHits: 3}
}

// Detect implements Detector. Languages are compared in a fixed order so equal
// counts resolve the same way every time.
func (d *StopwordDetector) Detect(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	counts := make(map[string]int, len(d.stopwords))
	total := 0
	for _, word := range words {
		for code, set := range d.stopwords {
			if _, ok := set[word]; ok {
				counts[code]++
				total++
			}
		}
	}

	best, bestCount := "", 0
	for _, code := range detectionOrder {
		if counts[code] > bestCount {
			best, bestCount = code, counts[code]
		}
	}
	if bestCount < d.minHits {
		return Result{}, ErrUndetermined
	}
	confidence := float64(bestCount) / float64(total)
	return Result{Language: best, Confidence: math.Round(confidence*100) / 100}, nil
}

var detectionOrder = []string{"en", "es", "fr", "de", "pt", "it", "nl"}

var stopwordLists = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "shall", "this", "with", "for", "be", "by", "any", "or", "on", "will", "which", "agreement", "party"},
	"es": {"el", "la", "los", "las", "y", "que", "en", "del", "por", "con", "para", "una", "será", "este", "contrato", "parte", "sus", "se", "al", "o"},
	"fr": {"le", "la", "les", "et", "des", "du", "que", "est", "une", "pour", "dans", "par", "sur", "au", "aux", "ce", "cette", "sera", "contrat", "partie"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "mit", "den", "dem", "ein", "eine", "zu", "von", "auf", "für", "wird", "des", "sich", "vertrag", "oder"},
	"pt": {"o", "os", "as", "e", "do", "da", "dos", "das", "não", "uma", "para", "com", "pelo", "pela", "em", "será", "contrato", "parte", "ao", "seu"},
	"it": {"il", "lo", "gli", "e", "di", "che", "è", "della", "del", "per", "con", "una", "sono", "nel", "alla", "sarà", "contratto", "parte", "questo", "dei"},
	"nl": {"de", "het", "een", "en", "van", "is", "dat", "niet", "met", "voor", "op", "zijn", "wordt", "deze", "aan", "bij", "overeenkomst", "partij", "zal", "of"},
}

// Directive is the instruction placed first in prompts that must be answered in a
// non-default language. It is empty for the default language.
func Directive(code string) string {
	if code == "" || code == document.DefaultLanguage {
		return ""
	}
	name := DisplayName(code)
	return fmt.Sprintf("Respond only in %s (%s); every natural-language value you return must be written in %s.", name, code, name)
}
