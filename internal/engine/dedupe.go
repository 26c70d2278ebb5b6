package engine

import (
	"sort"

	"github.com/cloakscan/cloakscan/internal/types"
)

// Dedupe merges findings of a single file whose byte spans overlap,
// transitively. The canonical finding of a group is the one with the highest
// severity, then the highest confidence, then the smallest rule ID. The merged
// finding carries the highest confidence of the group and the sorted union of
// contributing rule IDs, and is suppressed only if every contributor was.
// Touching spans do not overlap and are never merged.
func Dedupe(fs []types.Finding) []types.Finding {
	if len(fs) < 2 {
		return fs
	}
	sorted := make([]types.Finding, len(fs))
	copy(sorted, fs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.StartByte != sorted[j].Span.StartByte {
			return sorted[i].Span.StartByte < sorted[j].Span.StartByte
		}
		return sorted[i].Span.EndByte < sorted[j].Span.EndByte
	})

	out := make([]types.Finding, 0, len(sorted))
	group := []types.Finding{sorted[0]}
	span := sorted[0].Span
	for _, f := range sorted[1:] {
		if f.Span.Overlaps(span) {
			group = append(group, f)
			span.EndByte = max(span.EndByte, f.Span.EndByte)
			continue
		}
		out = append(out, merge(group))
		group = []types.Finding{f}
		span = f.Span
	}
	return append(out, merge(group))
}

func better(a, b types.Finding) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.RuleID < b.RuleID
}

func merge(group []types.Finding) types.Finding {
	if len(group) == 1 {
		return group[0]
	}
	best := group[0]
	conf := best.Confidence
	allSuppressed := true
	ids := map[string]bool{}
	for _, f := range group {
		if better(f, best) {
			best = f
		}
		conf = max(conf, f.Confidence)
		allSuppressed = allSuppressed && f.Suppressed
		ids[f.RuleID] = true
		for _, id := range f.RuleIDs {
			ids[id] = true
		}
	}
	merged := best
	merged.Confidence = conf
	merged.RuleIDs = make([]string, 0, len(ids))
	for id := range ids {
		merged.RuleIDs = append(merged.RuleIDs, id)
	}
	sort.Strings(merged.RuleIDs)
	merged.Suppressed = allSuppressed
	if !allSuppressed {
		merged.SuppressedBy = ""
	}
	return merged
}
