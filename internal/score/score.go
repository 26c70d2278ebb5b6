// Package score resolves the final severity and confidence of raw findings
// from their rule's base values and contextual signals.
package score

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloakscan/cloakscan/internal/detectors"
	"github.com/cloakscan/cloakscan/internal/logger"
	"github.com/cloakscan/cloakscan/internal/rules"
	"github.com/cloakscan/cloakscan/internal/types"
	"github.com/cloakscan/cloakscan/internal/validate"
)

// Confidence multipliers and adjustments.
const (
	CommentPenalty     = 0.7
	FixturePenalty     = 0.8
	PlaceholderPenalty = 0.5
	ValidShapeBonus    = 0.1
	MaxEntropyBonus    = 0.2
	LowConfidence      = 0.3
)

var fixtureMarkers = []string{"_test.go", "/test/", "/tests/", "/fixtures/", "/testdata/", ".spec.", ".test."}

var placeholderMarkers = []string{"example", "changeme", "change_me", "xxxx", "dummy", "placeholder", "your_", "your-", "${", "<", "redacted", "sample"}

// Scorer is stateless and safe for concurrent use.
type Scorer struct {
	log zerolog.Logger
}

// New returns a Scorer logging through log.
func New(log zerolog.Logger) *Scorer {
	return &Scorer{log: logger.Component(log, "score")}
}

// File scores findings of one file. Comment detection is computed lazily
// once per file. The returned value belongs to a single worker.
func (s *Scorer) File(f *detectors.File) *FileScorer {
	return &FileScorer{s: s, f: f, fixture: IsFixturePath(f.Path)}
}

// FileScorer carries per-file context.
type FileScorer struct {
	s       *Scorer
	f       *detectors.File
	fixture bool

	lexed    bool
	lexOK    bool
	comments []span
}

// Score resolves fd, which must come from rule r.
func (fs *FileScorer) Score(r *rules.Rule, fd types.Finding) types.Finding {
	conf := r.Confidence
	match := ""
	if fd.Span.StartByte >= 0 && fd.Span.EndByte <= len(fs.f.Data) && fd.Span.StartByte < fd.Span.EndByte {
		match = string(fs.f.Data[fd.Span.StartByte:fd.Span.EndByte])
	}

	if fs.inComment(fd.Span) {
		conf *= CommentPenalty
	}
	if fs.fixture {
		conf *= FixturePenalty
	}
	if IsPlaceholder(match) {
		conf *= PlaceholderPenalty
	}
	if r.Kind == rules.KindEntropy && fd.Entropy > r.EntropyThreshold {
		conf += math.Min(MaxEntropyBonus, (fd.Entropy-r.EntropyThreshold)*0.1)
	}
	if check, ok := validate.ForRule(r.ID); ok && check(match) {
		conf += ValidShapeBonus
	}
	conf = clamp(conf)

	sev := r.Severity
	if fd.Severity.Valid() && fd.Severity.Rank() < sev.Rank() {
		sev = fd.Severity
	}
	if r.Kind == rules.KindEntropy && conf < LowConfidence {
		sev = sev.Lower()
	}
	fd.Severity = sev
	fd.Confidence = math.Round(conf*1e4) / 1e4
	return fd
}

func (fs *FileScorer) inComment(sp types.Span) bool {
	if !fs.lexed {
		fs.lexed = true
		fs.comments, fs.lexOK = commentSpans(fs.f.Path, fs.f.Data)
		if !fs.lexOK {
			fs.s.log.Debug().Str("path", fs.f.Path).Msg("no lexer, using line heuristics")
		}
	}
	if fs.lexOK {
		return inSpans(fs.comments, sp.StartByte)
	}
	return lineComment(fs.f.LineText(sp.StartLine), sp.StartColumn)
}

// IsFixturePath reports whether a slash-separated relative path looks like
// test code or test data.
func IsFixturePath(path string) bool {
	p := "/" + strings.ToLower(path)
	for _, m := range fixtureMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether a matched value looks like documentation
// filler rather than a real secret.
func IsPlaceholder(match string) bool {
	m := strings.ToLower(match)
	for _, p := range placeholderMarkers {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
