package detectors

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/cloakscan/cloakscan/internal/redact"
	"github.com/cloakscan/cloakscan/internal/rules"
	"github.com/cloakscan/cloakscan/internal/types"
)

// Scan applies every rule to f. It checks ctx between rules and returns
// ctx.Err() when cancelled; the partial findings are discarded.
func Scan(ctx context.Context, rs []*rules.Rule, f *File) ([]types.Finding, error) {
	var out []types.Finding
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, Match(r, f)...)
	}
	return out, nil
}

// Applies reports whether r should run against f at all: the rule is
// enabled, the path is not excluded and at least one keyword is present.
func Applies(r *rules.Rule, f *File) bool {
	if !r.Enabled {
		return false
	}
	for _, g := range r.PathExcludes {
		if ok, _ := doublestar.Match(g, f.Path); ok {
			return false
		}
	}
	if len(r.Keywords) == 0 {
		return true
	}
	lower := f.lowered()
	for _, kw := range r.Keywords {
		if bytes.Contains(lower, []byte(kw)) {
			return true
		}
	}
	return false
}

// Match runs a single rule against f and returns one raw finding per
// non-overlapping match, in file order.
func Match(r *rules.Rule, f *File) []types.Finding {
	if !Applies(r, f) {
		return nil
	}
	var out []types.Finding
	switch r.Kind {
	case rules.KindLiteral:
		lit := r.Literal()
		if len(lit) == 0 {
			return nil
		}
		for off := 0; off < len(f.Data); {
			i := bytes.Index(f.Data[off:], lit)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, newFinding(r, f, start, start+len(lit), 0))
			off = start + len(lit)
		}
	case rules.KindRegex:
		re := r.Regexp()
		for _, m := range re.FindAllSubmatchIndex(f.Data, -1) {
			start, end := reportedSpan(m)
			if start == end {
				continue
			}
			out = append(out, newFinding(r, f, start, end, 0))
		}
	case rules.KindEntropy:
		for _, c := range entropyCandidates(f, r.Regexp(), r.MinLength, r.EntropyThreshold) {
			out = append(out, newFinding(r, f, c.start, c.end, c.entropy))
		}
	}
	return out
}

// reportedSpan picks the first non-empty capture group, or the whole match
// when the pattern has none.
func reportedSpan(m []int) (int, int) {
	for g := 2; g+1 < len(m); g += 2 {
		if m[g] >= 0 && m[g+1] > m[g] {
			return m[g], m[g+1]
		}
	}
	return m[0], m[1]
}

func newFinding(r *rules.Rule, f *File, start, end int, entropy float64) types.Finding {
	match := string(f.Data[start:end])
	sl, sc := f.Position(start)
	el, ec := f.Position(end - 1)
	fd := types.Finding{
		RuleID:      r.ID,
		RuleIDs:     []string{r.ID},
		Category:    r.Category,
		Description: r.Description,
		Path:        f.Path,
		Span: types.Span{
			StartByte: start, EndByte: end,
			StartLine: sl, StartColumn: sc,
			EndLine: el, EndColumn: ec + 1,
		},
		Excerpt:     redact.Excerpt(match),
		Severity:    r.Severity,
		Confidence:  r.Confidence,
		Entropy:     entropy,
		Fingerprint: fingerprint(f.Path, r.ID, start, end, match),
	}
	if marker, ok := f.Suppressions().Covers(sl, r.ID); ok {
		fd.Suppressed, fd.SuppressedBy = true, marker
	} else if entry, ok := r.Allowed(match); ok {
		fd.Suppressed, fd.SuppressedBy = true, "allowlist:"+entry
	}
	return fd
}

func fingerprint(path, id string, start, end int, match string) string {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = h.WriteString("\x00" + id + "\x00")
	_, _ = h.WriteString(strconv.Itoa(start) + ":" + strconv.Itoa(end))
	_, _ = h.WriteString("\x00" + match)
	return fmt.Sprintf("%016x", h.Sum64())
}
