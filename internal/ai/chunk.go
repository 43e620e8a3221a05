package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"lexplain/backend/internal/retry"
)

// DefaultChunkSize is the largest piece sent to a translator in one request.
const DefaultChunkSize = 4000

type chunkedTranslator struct {
	next     Translator
	maxChars int
	policy   *retry.Policy
}

// Chunked splits inputs longer than maxChars at paragraph, sentence or word
// boundaries, translates the pieces in order and rejoins them with the original
// separators.
func Chunked(next Translator, maxChars int) Translator {
	if next == nil {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	return &chunkedTranslator{next: next, maxChars: maxChars}
}

// ChunkedWithRetry is Chunked with every piece sent through retry.Do, so a failed
// piece is retried alone and the pieces already translated are not requested again.
func ChunkedWithRetry(next Translator, maxChars int, policy retry.Policy) Translator {
	if next == nil {
		return nil
	}
	c := Chunked(next, maxChars).(*chunkedTranslator)
	c.policy = &policy
	return c
}

func (c *chunkedTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if utf8.RuneCountInString(text) <= c.maxChars {
		return c.piece(ctx, text, source, target)
	}
	pieces := SplitChunks(text, c.maxChars)
	var b strings.Builder
	for i, piece := range pieces {
		if strings.TrimSpace(piece.Text) == "" {
			b.WriteString(piece.Text)
			b.WriteString(piece.Sep)
			continue
		}
		out, err := c.piece(ctx, piece.Text, source, target)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(pieces), err)
		}
		b.WriteString(out)
		b.WriteString(piece.Sep)
	}
	return b.String(), nil
}

func (c *chunkedTranslator) piece(ctx context.Context, text, source, target string) (string, error) {
	if c.policy == nil {
		return c.next.Translate(ctx, text, source, target)
	}
	return retry.Do(ctx, *c.policy, func(ctx context.Context) (string, error) {
		return c.next.Translate(ctx, text, source, target)
	})
}

// Chunk is one piece of a split text and the separator that followed it.
type Chunk struct {
	Text string
	Sep  string
}

// SplitChunks cuts text into pieces of at most maxChars runes. Concatenating
// Text+Sep over all chunks reproduces the input.
func SplitChunks(text string, maxChars int) []Chunk {
	var out []Chunk
	for _, para := range splitKeep(text, "\n\n") {
		if utf8.RuneCountInString(para.Text) <= maxChars {
			out = append(out, para)
			continue
		}
		sentences := splitSentencesKeep(para.Text)
		sentences[len(sentences)-1].Sep += para.Sep
		for _, sentence := range sentences {
			if utf8.RuneCountInString(sentence.Text) <= maxChars {
				out = append(out, sentence)
				continue
			}
			words := hardSplit(sentence.Text, maxChars)
			words[len(words)-1].Sep += sentence.Sep
			out = append(out, words...)
		}
	}
	return mergeSmall(out, maxChars)
}

func splitKeep(text, sep string) []Chunk {
	parts := strings.Split(text, sep)
	out := make([]Chunk, len(parts))
	for i, part := range parts {
		out[i] = Chunk{Text: part}
		if i < len(parts)-1 {
			out[i].Sep = sep
		}
	}
	return out
}

func splitSentencesKeep(text string) []Chunk {
	var out []Chunk
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', ';':
		default:
			continue
		}
		if i+1 < len(text) && text[i+1] == ' ' {
			out = append(out, Chunk{Text: text[start : i+1], Sep: " "})
			start = i + 2
			i++
		}
	}
	return append(out, Chunk{Text: text[start:]})
}

// hardSplit breaks at spaces, or mid-word when a single word exceeds maxChars.
func hardSplit(text string, maxChars int) []Chunk {
	var out []Chunk
	for utf8.RuneCountInString(text) > maxChars {
		runes := []rune(text)
		cut := strings.LastIndex(string(runes[:maxChars]), " ")
		if cut <= 0 {
			head := string(runes[:maxChars])
			out = append(out, Chunk{Text: head})
			text = text[len(head):]
			continue
		}
		out = append(out, Chunk{Text: text[:cut], Sep: " "})
		text = text[cut+1:]
	}
	return append(out, Chunk{Text: text})
}

// mergeSmall packs neighbouring chunks together while they fit in maxChars.
func mergeSmall(chunks []Chunk, maxChars int) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	out := []Chunk{chunks[0]}
	for _, chunk := range chunks[1:] {
		last := &out[len(out)-1]
		merged := last.Text + last.Sep + chunk.Text
		if utf8.RuneCountInString(merged) <= maxChars {
			last.Text = merged
			last.Sep = chunk.Sep
			continue
		}
		out = append(out, chunk)
	}
	return out
}
