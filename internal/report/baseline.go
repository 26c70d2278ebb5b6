package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloakscan/cloakscan/internal/types"
)

// DefaultBaselineFile is read from the scan root when no path is given.
const DefaultBaselineFile = "cloakscan.baseline.json"

// Baseline is a set of finding fingerprints accepted as known.
type Baseline struct {
	Version int             `json:"version"`
	Items   map[string]bool `json:"items"`
}

// LoadBaseline reads a baseline file. A missing file yields an empty
// baseline together with an error satisfying errors.Is(err, os.ErrNotExist).
func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Version: 1, Items: map[string]bool{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return Baseline{Version: 1, Items: map[string]bool{}}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Items == nil {
		b.Items = map[string]bool{}
	}
	return b, nil
}

// SaveBaseline records the fingerprints of all active findings.
func SaveBaseline(path string, findings []types.Finding) error {
	b := Baseline{Version: 1, Items: map[string]bool{}}
	for _, f := range findings {
		if !f.Suppressed {
			b.Items[f.Fingerprint] = true
		}
	}
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

// FilterNewFindings drops findings whose fingerprint is in the baseline.
func FilterNewFindings(findings []types.Finding, base Baseline) []types.Finding {
	out := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		if !base.Items[f.Fingerprint] {
			out = append(out, f)
		}
	}
	return out
}

// ApplyBaseline returns res restricted to findings not in base, with the
// summary recomputed.
func ApplyBaseline(res types.ScanResult, base Baseline) types.ScanResult {
	if len(base.Items) == 0 {
		return res
	}
	res.Findings = FilterNewFindings(res.Findings, base)
	res.Summary = Summarize(res.Findings)
	return res
}

// ShouldFail reports whether any unsuppressed finding is at or above failOn.
func ShouldFail(findings []types.Finding, failOn types.Severity) bool {
	th := failOn.Rank()
	if th == 0 {
		th = types.SevMed.Rank()
	}
	for _, f := range findings {
		if !f.Suppressed && f.Severity.Rank() >= th {
			return true
		}
	}
	return false
}
