package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Type  string `json:"type"`
	Score int    `json:"riskScore"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"raw", `{"type":"payment","riskScore":3}`},
		{"fenced", "```json\n{\"type\":\"payment\",\"riskScore\":3}\n```"},
		{"prose around", "Here you go: {\"type\":\"payment\",\"riskScore\":3} hope it helps"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJSON[sample](tc.content)
			require.NoError(t, err)
			assert.Equal(t, sample{Type: "payment", Score: 3}, got)
		})
	}
}

func TestParseJSONFailure(t *testing.T) {
	_, err := ParseJSON[sample]("no json here")
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "hola", StripFences("```\nhola\n```"))
	assert.Equal(t, "hola", StripFences("  hola "))
}
