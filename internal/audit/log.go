// Package audit appends one JSON line per scan to a local history file.
// Records carry counts and redacted excerpts only.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloakscan/cloakscan/internal/types"
)

// FileName is the audit log name inside a .git directory.
const FileName = "cloakscan_audit.jsonl"

const topFindings = 10

type ScanRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	ScanID         string           `json:"scan_id"`
	Root           string           `json:"root"`
	Status         types.Status     `json:"status"`
	RulesetVersion string           `json:"ruleset_version"`
	RulesetHash    string           `json:"ruleset_hash"`
	TotalFindings  int              `json:"total_findings"`
	NewFindings    int              `json:"new_findings"`
	BaselinedCount int              `json:"baselined_count"`
	Suppressed     int              `json:"suppressed"`
	SeverityCounts map[string]int   `json:"severity_counts"`
	FilesScanned   int              `json:"files_scanned"`
	FilesSkipped   int              `json:"files_skipped"`
	Duration       string           `json:"duration"`
	BaselineFile   string           `json:"baseline_file,omitempty"`
	TopFindings    []FindingSummary `json:"top_findings,omitempty"`
}

type FindingSummary struct {
	Path        string `json:"path"`
	RuleID      string `json:"rule_id"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
	Excerpt     string `json:"excerpt"`
	Fingerprint string `json:"fingerprint"`
}

type AuditLog struct {
	logPath string
}

// NewAuditLog places the log inside root/.git when root is a work tree and
// under the user state directory otherwise, so the log never lands in the
// scanned tree.
func NewAuditLog(root string) *AuditLog {
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return &AuditLog{logPath: filepath.Join(gitDir, FileName)}
	}
	return &AuditLog{logPath: filepath.Join(stateDir(), "cloakscan", "audit.jsonl")}
}

func stateDir() string {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state")
	}
	return os.TempDir()
}

// Path returns the file records are appended to.
func (a *AuditLog) Path() string { return a.logPath }

// LoadHistory returns all readable records, newest first. Corrupt lines
// are skipped.
func (a *AuditLog) LoadHistory() ([]ScanRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []ScanRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		var record ScanRecord
		if err := json.Unmarshal(sc.Bytes(), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return records, fmt.Errorf("failed to read audit log: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// LogScan appends record to the log, creating it owner-only if needed.
func (a *AuditLog) LogScan(record ScanRecord) error {
	if err := os.MkdirAll(filepath.Dir(a.logPath), 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// CreateScanRecord summarises res. newFindings are the findings left after
// baseline filtering.
func CreateScanRecord(res types.ScanResult, newFindings []types.Finding, baselineFile string) ScanRecord {
	severityCounts := make(map[string]int)
	for sev, n := range res.Summary.BySeverity {
		if n > 0 {
			severityCounts[string(sev)] = n
		}
	}

	top := make([]FindingSummary, 0, topFindings)
	for _, f := range newFindings {
		if f.Suppressed {
			continue
		}
		if len(top) == topFindings {
			break
		}
		top = append(top, FindingSummary{
			Path:        f.Path,
			RuleID:      f.RuleID,
			Severity:    string(f.Severity),
			Line:        f.Line(),
			Excerpt:     f.Excerpt,
			Fingerprint: f.Fingerprint,
		})
	}

	return ScanRecord{
		Timestamp:      time.Now().UTC(),
		ScanID:         res.Metadata.ScanID,
		Root:           res.Metadata.Root,
		Status:         res.Status,
		RulesetVersion: res.Metadata.RulesetVersion,
		RulesetHash:    res.Metadata.RulesetHash,
		TotalFindings:  len(res.Findings),
		NewFindings:    len(newFindings),
		BaselinedCount: len(res.Findings) - len(newFindings),
		Suppressed:     res.Summary.Suppressed,
		SeverityCounts: severityCounts,
		FilesScanned:   res.Metadata.FilesScanned,
		FilesSkipped:   res.Metadata.FilesSkipped,
		Duration:       res.Metadata.Duration.String(),
		BaselineFile:   baselineFile,
		TopFindings:    top,
	}
}
