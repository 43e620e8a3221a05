// Package extract turns uploaded file bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// Supported MIME types.
const (
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeHTML     = "text/html"
	MimeXHTML    = "application/xhtml+xml"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultMaxBytes bounds accepted uploads.
const DefaultMaxBytes = 10 << 20

var (
	// ErrUnsupportedType is wrapped by ExtractionError for types without an extractor.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrNoText is wrapped by ExtractionError when a document holds no readable text.
	ErrNoText = errors.New("document contains no text")
	// ErrTooLarge is wrapped by ExtractionError when the upload exceeds the size limit.
	ErrTooLarge = errors.New("document too large")
)

// ExtractionError is fatal to a single upload.
type ExtractionError struct {
	MimeType string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.MimeType == "" {
		return "extract text: " + e.Err.Error()
	}
	return fmt.Sprintf("extract text from %s: %v", e.MimeType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Service extracts text from plain text, markdown, HTML and DOCX uploads.
type Service struct {
	maxBytes int
}

// NewService returns a Service. A non-positive maxBytes uses DefaultMaxBytes.
func NewService(maxBytes int) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{maxBytes: maxBytes}
}

// Extract makes a single attempt. An empty or generic mimeType is sniffed from data.
func (s *Service) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) > s.maxBytes {
		return "", &ExtractionError{MimeType: mimeType, Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), s.maxBytes)}
	}
	kind := resolveType(data, mimeType)

	var (
		text string
		err  error
	)
	switch kind {
	case MimePlain, MimeMarkdown:
		text, err = plainText(data)
	case MimeHTML, MimeXHTML:
		text, err = htmlText(data, mimeType)
	case MimeDOCX:
		text, err = docxText(ctx, data)
	default:
		err = ErrUnsupportedType
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &ExtractionError{MimeType: kind, Err: err}
	}

	text = tidy(text)
	if text == "" {
		return "", &ExtractionError{MimeType: kind, Err: ErrNoText}
	}
	logrus.WithFields(logrus.Fields{"mime": kind, "bytes": len(data), "chars": utf8.RuneCountInString(text)}).
		Debug("extracted document text")
	return text, nil
}

// resolveType trusts a specific declared type and sniffs generic or missing ones.
func resolveType(data []byte, declared string) string {
	base := baseType(declared)
	switch base {
	case "", "application/octet-stream", "application/zip", "binary/octet-stream":
		detected := mimetype.Detect(data)
		for m := detected; m != nil; m = m.Parent() {
			switch baseType(m.String()) {
			case MimePlain, MimeHTML, MimeXHTML, MimeDOCX:
				return baseType(m.String())
			}
		}
		return baseType(detected.String())
	case "text/x-markdown":
		return MimeMarkdown
	}
	return base
}

func baseType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	media, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return media
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(data), nil
}

// tidy normalizes to NFC, unifies line endings, trims lines and collapses runs of
// blank lines.
func tidy(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
