package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/cloakscan/cloakscan/internal/types"
)

type PrintOptions struct {
	NoColor        bool
	ShowSuppressed bool
}

var severityStyles = map[types.Severity]lipgloss.Style{
	types.SevCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	types.SevHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	types.SevMed:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	types.SevLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	types.SevInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

// ColorEnabled reports whether severity coloring should be used for f.
// NO_COLOR disables it regardless of the terminal.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// PrintTable renders the result as a table followed by a summary footer.
// Only redacted excerpts are printed.
func PrintTable(w io.Writer, res types.ScanResult, opts PrintOptions) error {
	shown := res.Findings
	if !opts.ShowSuppressed {
		shown = res.Active()
	}
	if len(shown) == 0 {
		fmt.Fprintln(w, "No findings ✅")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("SEVERITY", "RULE", "LOCATION", "CONFIDENCE", "EXCERPT")
		for _, f := range shown {
			sev := string(f.Severity)
			if !opts.NoColor {
				sev = severityStyles[f.Severity].Render(sev)
			}
			rule := f.RuleID
			if f.Suppressed {
				rule += " (suppressed)"
			}
			loc := fmt.Sprintf("%s:%d:%d", f.Path, f.Span.StartLine, f.Span.StartColumn)
			if err := table.Append([]string{sev, rule, loc, strconv.FormatFloat(f.Confidence, 'f', 2, 64), f.Excerpt}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	s := res.Summary
	m := res.Metadata
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Findings: %d (critical: %d, high: %d, medium: %d, low: %d, info: %d, suppressed: %d)\n",
		s.Total-s.Suppressed, s.BySeverity[types.SevCritical], s.BySeverity[types.SevHigh],
		s.BySeverity[types.SevMed], s.BySeverity[types.SevLow], s.BySeverity[types.SevInfo], s.Suppressed)
	fmt.Fprintf(w, "Files scanned: %d, skipped: %d, binary: %d\n", m.FilesScanned, m.FilesSkipped, m.BinaryFiles)
	fmt.Fprintf(w, "Rules: %d (ruleset %s)\n", m.RuleCount, m.RulesetVersion)
	if m.Duration > 0 {
		fmt.Fprintf(w, "Scan duration: %.2fs\n", m.Duration.Seconds())
	}
	if res.Status == types.StatusTimedOut {
		fmt.Fprintln(w, "Scan timed out: results are partial")
	}
	for _, wn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", wn.Message)
	}
	return nil
}

// WriteJSON encodes the full result as indented JSON.
func WriteJSON(w io.Writer, res types.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
