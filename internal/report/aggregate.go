package report

import (
	"sort"
	"sync"
	"time"

	"github.com/cloakscan/cloakscan/internal/types"
)

// FileResult is the complete outcome for one fully processed file.
type FileResult struct {
	Path     string
	Findings []types.Finding
}

// Aggregator collects per-file results from concurrent workers and builds
// the final ScanResult. It is the only synchronisation point of a scan.
type Aggregator struct {
	mu       sync.Mutex
	meta     types.Metadata
	findings []types.Finding
	skipped  []types.SkippedFile
	warnings []types.Warning
	binaries int
	scanned  int
}

// NewAggregator starts a result with the given run metadata.
func NewAggregator(meta types.Metadata) *Aggregator {
	return &Aggregator{meta: meta}
}

// Add records a fully processed file.
func (a *Aggregator) Add(r FileResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanned++
	a.findings = append(a.findings, r.Findings...)
}

// Binary counts a file classified as binary and not scanned.
func (a *Aggregator) Binary() {
	a.mu.Lock()
	a.binaries++
	a.mu.Unlock()
}

// Skip records a file that did not contribute findings.
func (a *Aggregator) Skip(path, reason string) {
	a.mu.Lock()
	a.skipped = append(a.skipped, types.SkippedFile{Path: path, Reason: reason})
	a.mu.Unlock()
}

// Warn attaches a non-fatal problem to the result.
func (a *Aggregator) Warn(w types.Warning) {
	a.mu.Lock()
	a.warnings = append(a.warnings, w)
	a.mu.Unlock()
}

// Result sorts and copies the collected data into an independent
// ScanResult.
func (a *Aggregator) Result(status types.Status) types.ScanResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	fs := make([]types.Finding, len(a.findings))
	copy(fs, a.findings)
	SortFindings(fs)

	skipped := make([]types.SkippedFile, len(a.skipped))
	copy(skipped, a.skipped)
	sort.Slice(skipped, func(i, j int) bool {
		if skipped[i].Path != skipped[j].Path {
			return skipped[i].Path < skipped[j].Path
		}
		return skipped[i].Reason < skipped[j].Reason
	})

	meta := a.meta
	meta.FilesScanned = a.scanned
	meta.BinaryFiles = a.binaries
	meta.SkippedPaths = skipped
	meta.FilesSkipped = len(skipped)
	if !meta.StartedAt.IsZero() {
		meta.Duration = time.Since(meta.StartedAt)
	}

	return types.ScanResult{
		Status:   status,
		Findings: fs,
		Summary:  Summarize(fs),
		Metadata: meta,
		Warnings: append([]types.Warning(nil), a.warnings...),
	}
}

// SortFindings orders findings by path, start line, rule ID, start column
// and start byte.
func SortFindings(fs []types.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Span.StartLine != b.Span.StartLine {
			return a.Span.StartLine < b.Span.StartLine
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.Span.StartColumn != b.Span.StartColumn {
			return a.Span.StartColumn < b.Span.StartColumn
		}
		return a.Span.StartByte < b.Span.StartByte
	})
}

// Summarize counts findings. Suppressed findings are counted separately and
// excluded from the per-severity counts.
func Summarize(fs []types.Finding) types.Summary {
	s := types.Summary{BySeverity: map[types.Severity]int{}}
	for _, sev := range types.Severities {
		s.BySeverity[sev] = 0
	}
	for _, f := range fs {
		s.Total++
		if f.Suppressed {
			s.Suppressed++
			continue
		}
		s.BySeverity[f.Severity]++
	}
	return s
}
