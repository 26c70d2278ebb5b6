package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity is a coarse-grained risk level for a finding.
type Severity string

const (
	SevInfo     Severity = "info"
	SevLow      Severity = "low"
	SevMed      Severity = "medium"
	SevHigh     Severity = "high"
	SevCritical Severity = "critical"
)

// Severities lists every severity from least to most severe.
var Severities = []Severity{SevInfo, SevLow, SevMed, SevHigh, SevCritical}

// Rank orders severities; unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SevInfo:
		return 1
	case SevLow:
		return 2
	case SevMed:
		return 3
	case SevHigh:
		return 4
	case SevCritical:
		return 5
	}
	return 0
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Lower returns the next lower severity, never going below info.
func (s Severity) Lower() Severity {
	r := s.Rank() - 1
	if r < 1 {
		return SevInfo
	}
	return Severities[r-1]
}

// ParseSeverity accepts a severity name case-insensitively ("med" is accepted for medium).
func ParseSeverity(s string) (Severity, error) {
	v := Severity(strings.ToLower(strings.TrimSpace(s)))
	if v == "med" {
		v = SevMed
	}
	if !v.Valid() {
		return "", fmt.Errorf("unknown severity %q (want info|low|medium|high|critical)", s)
	}
	return v, nil
}

// Span locates a finding inside a file. Byte offsets are half-open; lines and
// columns are 1-based.
type Span struct {
	StartByte   int `json:"start_byte"`
	EndByte     int `json:"end_byte"`
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Overlaps reports whether two spans share at least one byte. Touching spans
// do not overlap.
func (s Span) Overlaps(o Span) bool {
	return s.StartByte < o.EndByte && o.StartByte < s.EndByte
}

// Finding describes a potential secret or insecure construct detected at a
// path and span. The matched text itself is never stored, only its redacted
// excerpt.
type Finding struct {
	RuleID       string   `json:"rule_id"`
	RuleIDs      []string `json:"rule_ids,omitempty"` // all contributing rules after dedupe
	Category     string   `json:"category"`
	Description  string   `json:"description,omitempty"`
	Path         string   `json:"path"`
	Span         Span     `json:"span"`
	Excerpt      string   `json:"excerpt"`
	Severity     Severity `json:"severity"`
	Confidence   float64  `json:"confidence"`
	Entropy      float64  `json:"entropy,omitempty"`
	Suppressed   bool     `json:"suppressed,omitempty"`
	SuppressedBy string   `json:"suppressed_by,omitempty"` // inline marker or allowlist entry
	Fingerprint  string   `json:"fingerprint"`
}

// Line is a convenience accessor for the starting line.
func (f Finding) Line() int { return f.Span.StartLine }

// Status is the terminal state of a scan.
type Status string

const (
	StatusComplete Status = "complete"
	StatusTimedOut Status = "timed_out"
)

// SkippedFile records why a file did not contribute findings.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipUnreadable = "unreadable"
	SkipTooLarge   = "too_large"
	SkipSymlink    = "symlink_cycle"
	SkipAlias      = "symlink_alias" // target is scanned under another path
	SkipTimeout    = "timeout"
)

// Warning is a non-fatal problem surfaced with the result, e.g. a rejected rule.
type Warning struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Summary holds aggregate counts over the result's findings.
type Summary struct {
	Total      int              `json:"total"`
	Suppressed int              `json:"suppressed"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// RepoInfo describes the git work tree containing the scan root, if any.
type RepoInfo struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// Metadata describes the scan run itself.
type Metadata struct {
	ScanID         string        `json:"scan_id"`
	Root           string        `json:"root"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	FilesScanned   int           `json:"files_scanned"`
	FilesSkipped   int           `json:"files_skipped"`
	BinaryFiles    int           `json:"binary_files"`
	SkippedPaths   []SkippedFile `json:"skipped_paths,omitempty"`
	RulesetVersion string        `json:"ruleset_version"`
	RulesetHash    string        `json:"ruleset_hash"`
	RuleCount      int           `json:"rule_count"`
	Repo           *RepoInfo     `json:"repo,omitempty"`
}

// ScanResult is the immutable outcome of one scan. Findings are sorted by
// path, start line and rule ID. Only report.Aggregator builds one.
type ScanResult struct {
	Status   Status    `json:"status"`
	Findings []Finding `json:"findings"`
	Summary  Summary   `json:"summary"`
	Metadata Metadata  `json:"metadata"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Active returns the findings that are not suppressed.
func (r ScanResult) Active() []Finding {
	out := make([]Finding, 0, len(r.Findings))
	for _, f := range r.Findings {
		if !f.Suppressed {
			out = append(out, f)
		}
	}
	return out
}
