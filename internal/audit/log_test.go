package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakscan/cloakscan/internal/types"
)

func TestNewAuditLog_Location(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	assert.Equal(t, filepath.Join(repo, ".git", FileName), NewAuditLog(repo).Path())

	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	assert.Equal(t, filepath.Join(state, "cloakscan", "audit.jsonl"), NewAuditLog(t.TempDir()).Path())
}

func TestLogScan_AppendsAndLoadsNewestFirst(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	log := NewAuditLog(repo)

	require.NoError(t, log.LogScan(ScanRecord{ScanID: "first"}))
	f, err := os.OpenFile(log.Path(), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("{corrupt\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, log.LogScan(ScanRecord{ScanID: "second"}))

	recs, err := log.LoadHistory()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].ScanID)
	assert.Equal(t, "first", recs[1].ScanID)

	st, err := os.Stat(log.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestLoadHistory_Missing(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	_, err := NewAuditLog(t.TempDir()).LoadHistory()
	assert.Error(t, err)
}

func TestCreateScanRecord(t *testing.T) {
	all := []types.Finding{
		{RuleID: "github-token", Path: "a.go", Severity: types.SevHigh, Excerpt: "ghp_…WXYZ", Fingerprint: "aa", Span: types.Span{StartLine: 3}},
		{RuleID: "jwt", Path: "b.go", Severity: types.SevMed, Suppressed: true},
		{RuleID: "jwt", Path: "c.go", Severity: types.SevMed},
	}
	res := types.ScanResult{
		Status:   types.StatusComplete,
		Findings: all,
		Summary: types.Summary{Total: 3, Suppressed: 1, BySeverity: map[types.Severity]int{
			types.SevHigh: 1, types.SevMed: 1, types.SevLow: 0,
		}},
		Metadata: types.Metadata{ScanID: "s1", Root: "/r", FilesScanned: 7, Duration: 2 * time.Second},
	}
	rec := CreateScanRecord(res, all[:2], "cloakscan.baseline.json")
	assert.Equal(t, "s1", rec.ScanID)
	assert.Equal(t, 3, rec.TotalFindings)
	assert.Equal(t, 2, rec.NewFindings)
	assert.Equal(t, 1, rec.BaselinedCount)
	assert.Equal(t, 1, rec.Suppressed)
	assert.Equal(t, map[string]int{"high": 1, "medium": 1}, rec.SeverityCounts)
	assert.Equal(t, "2s", rec.Duration)
	require.Len(t, rec.TopFindings, 1)
	assert.Equal(t, FindingSummary{Path: "a.go", RuleID: "github-token", Severity: "high", Line: 3, Excerpt: "ghp_…WXYZ", Fingerprint: "aa"}, rec.TopFindings[0])
}
