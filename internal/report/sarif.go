package report

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/cloakscan/cloakscan/internal/types"
)

const sarifSchema = "https://json.schemastore.org/sarif-2.1.0.json"

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool      `json:"tool"`
	Results    []sarifResult  `json:"results"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string         `json:"id"`
	ShortDescription sarifMessage   `json:"shortDescription"`
	Properties       map[string]any `json:"properties,omitempty"`
}

type sarifResult struct {
	RuleID              string             `json:"ruleId"`
	RuleIndex           int                `json:"ruleIndex"`
	Level               string             `json:"level"`
	Message             sarifMessage       `json:"message"`
	Locations           []sarifLoc         `json:"locations"`
	PartialFingerprints map[string]string  `json:"partialFingerprints,omitempty"`
	Suppressions        []sarifSuppression `json:"suppressions,omitempty"`
	Properties          map[string]any     `json:"properties,omitempty"`
}

type sarifSuppression struct {
	Kind          string `json:"kind"`
	Justification string `json:"justification,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhys `json:"physicalLocation"`
}

type sarifPhys struct {
	ArtifactLocation sarifArt    `json:"artifactLocation"`
	Region           sarifRegion `json:"region"`
}

type sarifArt struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int           `json:"startLine"`
	StartColumn int           `json:"startColumn,omitempty"`
	EndLine     int           `json:"endLine,omitempty"`
	EndColumn   int           `json:"endColumn,omitempty"`
	Snippet     *sarifMessage `json:"snippet,omitempty"`
}

func sevToLevel(s types.Severity) string {
	switch s {
	case types.SevCritical, types.SevHigh:
		return "error"
	case types.SevMed:
		return "warning"
	default:
		return "note"
	}
}

// WriteSARIF writes the result as a SARIF 2.1.0 log with a single run.
// Suppressed findings are kept and marked with an inSource suppression.
func WriteSARIF(w io.Writer, res types.ScanResult, toolVersion string) error {
	descs := map[string]string{}
	for _, f := range res.Findings {
		if _, ok := descs[f.RuleID]; !ok || descs[f.RuleID] == "" {
			descs[f.RuleID] = f.Description
		}
	}
	ids := make([]string, 0, len(descs))
	for id := range descs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := make(map[string]int, len(ids))
	rules := make([]sarifRule, 0, len(ids))
	for i, id := range ids {
		index[id] = i
		text := descs[id]
		if text == "" {
			text = id
		}
		rules = append(rules, sarifRule{ID: id, ShortDescription: sarifMessage{Text: text}})
	}

	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:    "cloakscan",
			Version: toolVersion,
			Rules:   rules,
		}},
		Results: make([]sarifResult, 0, len(res.Findings)),
		Properties: map[string]any{
			"status":         res.Status,
			"scanId":         res.Metadata.ScanID,
			"rulesetVersion": res.Metadata.RulesetVersion,
			"rulesetHash":    res.Metadata.RulesetHash,
			"filesScanned":   res.Metadata.FilesScanned,
			"filesSkipped":   res.Metadata.FilesSkipped,
		},
	}
	for _, f := range res.Findings {
		r := sarifResult{
			RuleID:    f.RuleID,
			RuleIndex: index[f.RuleID],
			Level:     sevToLevel(f.Severity),
			Message:   sarifMessage{Text: f.RuleID + " detected: " + f.Excerpt},
			Locations: []sarifLoc{{
				PhysicalLocation: sarifPhys{
					ArtifactLocation: sarifArt{URI: f.Path},
					Region: sarifRegion{
						StartLine:   f.Span.StartLine,
						StartColumn: f.Span.StartColumn,
						EndLine:     f.Span.EndLine,
						EndColumn:   f.Span.EndColumn,
						Snippet:     &sarifMessage{Text: f.Excerpt},
					},
				},
			}},
			PartialFingerprints: map[string]string{"cloakscan/v1": f.Fingerprint},
			Properties: map[string]any{
				"severity":   f.Severity,
				"confidence": f.Confidence,
				"category":   f.Category,
			},
		}
		if f.Suppressed {
			r.Suppressions = []sarifSuppression{{Kind: "inSource", Justification: f.SuppressedBy}}
		}
		run.Results = append(run.Results, r)
	}

	doc := sarif{Schema: sarifSchema, Version: "2.1.0", Runs: []sarifRun{run}}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
