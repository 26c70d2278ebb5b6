package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakscan/cloakscan/internal/types"
)

func sampleResult() types.ScanResult {
	agg := NewAggregator(types.Metadata{ScanID: "id-1", Root: "/repo", RuleCount: 3, RulesetVersion: "1.2.0"})
	agg.Add(FileResult{Path: "a.go", Findings: []types.Finding{{
		RuleID: "github-token", Path: "a.go", Category: "secret", Description: "GitHub token",
		Span:    types.Span{StartLine: 4, StartColumn: 7, EndLine: 4, EndColumn: 47},
		Excerpt: "ghp_…WXYZ", Severity: types.SevHigh, Confidence: 0.9, Fingerprint: "00000000000000aa",
	}}})
	agg.Add(FileResult{Path: "b.env", Findings: []types.Finding{{
		RuleID: "entropy-assignment", Path: "b.env", Category: "secret",
		Span:    types.Span{StartLine: 1, StartColumn: 5, EndLine: 1, EndColumn: 30},
		Excerpt: "Zx9q…77ab", Severity: types.SevMed, Confidence: 0.6, Fingerprint: "00000000000000bb",
		Suppressed: true, SuppressedBy: "cloakscan:ignore",
	}}})
	agg.Skip("big.bin", types.SkipTooLarge)
	return agg.Result(types.StatusComplete)
}

func TestPrintTable_NoFindings_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	res := NewAggregator(types.Metadata{}).Result(types.StatusComplete)
	res.Metadata.Duration = 1200 * time.Millisecond
	res.Metadata.FilesScanned = 10
	require.NoError(t, PrintTable(&buf, res, PrintOptions{NoColor: true}))
	out := buf.String()
	assert.Contains(t, out, "No findings")
	assert.Contains(t, out, "Files scanned: 10")
	assert.Contains(t, out, "Scan duration: 1.20s")
}

func TestPrintTable_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, sampleResult(), PrintOptions{NoColor: true}))
	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "github-token")
	assert.Contains(t, out, "a.go:4:7")
	assert.Contains(t, out, "ghp_…WXYZ")
	assert.NotContains(t, out, "entropy-assignment", "suppressed findings are hidden by default")
	assert.Contains(t, out, "suppressed: 1")
	assert.Contains(t, out, "skipped: 1")
}

func TestPrintTable_ShowSuppressed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, sampleResult(), PrintOptions{NoColor: true, ShowSuppressed: true}))
	assert.Contains(t, buf.String(), "entropy-assignment (suppressed)")
}

func TestPrintTable_TimedOut(t *testing.T) {
	var buf bytes.Buffer
	res := sampleResult()
	res.Status = types.StatusTimedOut
	res.Warnings = []types.Warning{{Kind: "timeout", Message: "scan timed out after 1s"}}
	require.NoError(t, PrintTable(&buf, res, PrintOptions{NoColor: true}))
	assert.Contains(t, buf.String(), "results are partial")
	assert.Contains(t, buf.String(), "warning: scan timed out after 1s")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult()))
	var got types.ScanResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, types.StatusComplete, got.Status)
	require.Len(t, got.Findings, 2)
	assert.Equal(t, "a.go", got.Findings[0].Path)
	assert.Equal(t, 1, got.Summary.BySeverity[types.SevHigh])
	assert.Equal(t, 0, got.Summary.BySeverity[types.SevMed])
}
