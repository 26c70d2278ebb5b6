package sbom

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloakscan/cloakscan/internal/types"
)

// Format selects the SBOM serialization.
type Format string

const (
	FormatSPDX      Format = "spdx"
	FormatCycloneDX Format = "cyclonedx"
)

// ParseFormat accepts spdx or cyclonedx case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSPDX, "spdx-json":
		return FormatSPDX, nil
	case FormatCycloneDX, "cdx":
		return FormatCycloneDX, nil
	}
	return "", fmt.Errorf("unknown sbom format %q (want spdx|cyclonedx)", s)
}

// Document is everything an SBOM writer needs. Result is read only.
type Document struct {
	Inventory   Inventory
	Result      types.ScanResult
	ToolVersion string
	Created     time.Time
}

// Write encodes doc in the requested format.
func Write(w io.Writer, f Format, doc Document) error {
	if doc.Created.IsZero() {
		doc.Created = time.Now().UTC()
	}
	switch f {
	case FormatSPDX:
		return WriteSPDX(w, doc)
	case FormatCycloneDX:
		return WriteCycloneDX(w, doc)
	}
	return fmt.Errorf("unknown sbom format %q", f)
}

// annotation is a name/value pair derived from the scan result. Findings
// contribute only their redacted excerpt.
type annotation struct {
	Name  string
	Value string
}

func scanAnnotations(res types.ScanResult) []annotation {
	m := res.Metadata
	out := []annotation{
		{"cloakscan:scan_id", m.ScanID},
		{"cloakscan:status", string(res.Status)},
		{"cloakscan:ruleset_version", m.RulesetVersion},
		{"cloakscan:ruleset_hash", m.RulesetHash},
		{"cloakscan:files_scanned", strconv.Itoa(m.FilesScanned)},
		{"cloakscan:findings", strconv.Itoa(res.Summary.Total - res.Summary.Suppressed)},
		{"cloakscan:suppressed", strconv.Itoa(res.Summary.Suppressed)},
	}
	for i := len(types.Severities) - 1; i >= 0; i-- {
		sev := types.Severities[i]
		out = append(out, annotation{"cloakscan:findings:" + string(sev), strconv.Itoa(res.Summary.BySeverity[sev])})
	}
	for _, f := range res.Active() {
		out = append(out, annotation{"cloakscan:finding", findingText(f)})
	}
	return out
}

func findingText(f types.Finding) string {
	return fmt.Sprintf("%s %s %s:%d %s", f.Severity, f.RuleID, f.Path, f.Line(), f.Excerpt)
}
