package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when a reply cannot be parsed as JSON.
var ErrParseFailed = errors.New("failed to parse ai response")

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON unmarshals a model reply into T. It tries the raw content, then a
// markdown code fence, then the outermost {...} span.
func ParseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}
	if matches := jsonFence.FindStringSubmatch(content); len(matches) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(matches[1])), &result); err == nil {
			return result, nil
		}
	}
	if block := normalizeJSONBlock(content); block != content {
		if err := json.Unmarshal([]byte(block), &result); err == nil {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w: %s", ErrParseFailed, truncateForError(content))
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}

// StripFences removes a surrounding markdown code fence from free-text replies.
func StripFences(input string) string {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncateForError(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
