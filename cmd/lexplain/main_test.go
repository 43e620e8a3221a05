package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexplain/backend/internal/analysis"
)

const agreement = `Section 1. The Landlord agrees to rent the premises at 12 Harbor Road to the Tenant for a term of twelve months.
Section 2. The Tenant shall pay monthly rent of $1,200 on or before the first day of each month by bank transfer.
Section 3. Breach of this agreement may result in immediate termination and forfeiture of all deposits held by the Landlord.
Section 4. The Tenant shall keep the premises in good repair and notify the Landlord promptly of any damage.
Section 5. Either party may terminate this agreement with thirty (30) days written notice to the other party.`

func writeDocument(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LEXPLAIN_AI_API_KEY", "")
	t.Setenv("LEXPLAIN_REDIS_ADDR", "")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommandPrintsJSON(t *testing.T) {
	path := writeDocument(t, "lease.txt", agreement)

	out, err := runCLI(t, "analyze", path, "--no-ai", "--log-level", "error")
	require.NoError(t, err)

	var report analysis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Bundle.Clauses, 5)
	assert.Equal(t, "en", report.Bundle.Language)
	assert.Equal(t, "high", report.Bundle.Clauses[2].RiskCategory)
	assert.Equal(t, "high", report.Overall.Category)
	assert.True(t, report.SummaryFallback)
	assert.NotEmpty(t, report.Bundle.Summary)
}

func TestAnalyzeCommandMarkdown(t *testing.T) {
	path := writeDocument(t, "lease.md", agreement)

	out, err := runCLI(t, "analyze", path, "--no-ai", "--format", "markdown", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Overall risk: **high**")
	assert.Contains(t, out, "# Clauses")
	assert.Contains(t, out, "## 3. ")
}

func TestAnalyzeCommandErrors(t *testing.T) {
	path := writeDocument(t, "lease.txt", agreement)

	_, err := runCLI(t, "analyze", path, "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, err = runCLI(t, "analyze", filepath.Join(t.TempDir(), "missing.txt"), "--no-ai")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")

	_, err = runCLI(t, "analyze")
	require.Error(t, err)
}

func TestTypeByExtension(t *testing.T) {
	assert.Equal(t, "text/plain", typeByExtension("a.TXT"))
	assert.Equal(t, "text/markdown", typeByExtension("notes.md"))
	assert.Equal(t, "text/html", typeByExtension("page.htm"))
	assert.Equal(t, "", typeByExtension("contract"))
}
