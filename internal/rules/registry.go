package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	semver "github.com/blang/semver/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/cloakscan/cloakscan/internal/logger"
)

// ErrNoRules is returned when no enabled rule survives validation.
var ErrNoRules = errors.New("no enabled rules")

// Options tunes registry construction.
type Options struct {
	Entropy EntropyDefaults
	Logger  zerolog.Logger
}

// Registry is the immutable, validated rule set for one scan. It is safe
// for concurrent use.
type Registry struct {
	all        []*Rule
	enabled    []*Rule
	rejections []Rejection
	version    string
	hash       string
}

// NewRegistry merges sources in order. A rule from a later source replaces
// an earlier rule with the same ID entirely. Invalid rules are rejected
// individually: an invalid override leaves the earlier rule in place, and
// a duplicate ID within one source rejects the later entry.
func NewRegistry(opts Options, sources ...Source) *Registry {
	log := logger.Component(opts.Logger, "rules")
	reg := &Registry{}
	byID := map[string]*Rule{}
	customized := false

	reject := func(rj Rejection) {
		reg.rejections = append(reg.rejections, rj)
		log.Warn().Str("rule", rj.RuleID).Str("source", rj.Source).Msg(rj.Reason)
	}

	for i, src := range sources {
		for _, rj := range src.Rejections {
			reject(rj)
		}
		seen := map[string]bool{}
		for _, d := range src.Definitions {
			if d.ID != "" && seen[d.ID] {
				reject(Rejection{RuleID: d.ID, Source: src.Name, Reason: "duplicate rule id in source"})
				continue
			}
			seen[d.ID] = true
			r, err := Compile(d, src.Name, opts.Entropy)
			if err != nil {
				reject(Rejection{RuleID: d.ID, Source: src.Name, Reason: err.Error()})
				continue
			}
			byID[r.ID] = r
			if i > 0 {
				customized = true
			}
		}
	}

	for _, r := range byID {
		reg.all = append(reg.all, r)
	}
	sort.Slice(reg.all, func(i, j int) bool { return reg.all[i].ID < reg.all[j].ID })
	for _, r := range reg.all {
		if r.Enabled {
			reg.enabled = append(reg.enabled, r)
		}
	}
	reg.version = rulesetVersion(sources, customized)
	reg.hash = hashRules(reg.enabled)
	log.Debug().Int("enabled", len(reg.enabled)).Int("rejected", len(reg.rejections)).Str("hash", reg.hash).Msg("rule registry built")
	return reg
}

// Load builds a registry from the built-in rules plus an optional custom
// rule file. An unreadable or unparsable custom file is an error.
func Load(customPath string, opts Options) (*Registry, error) {
	sources := []Source{Builtin()}
	if customPath != "" {
		src, err := LoadFile(customPath)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return NewRegistry(opts, sources...), nil
}

// Rules returns the enabled rules sorted by ID.
func (r *Registry) Rules() []*Rule { return r.enabled }

// All returns every valid rule, disabled ones included, sorted by ID.
func (r *Registry) All() []*Rule { return r.all }

// Rejections lists the rules excluded during validation.
func (r *Registry) Rejections() []Rejection { return r.rejections }

// Version is the semantic version of the rule set.
func (r *Registry) Version() string { return r.version }

// Hash identifies the enabled rule set; equal hashes mean equal rules.
func (r *Registry) Hash() string { return r.hash }

// Lookup finds a valid rule by ID.
func (r *Registry) Lookup(id string) (*Rule, bool) {
	i := sort.Search(len(r.all), func(i int) bool { return r.all[i].ID >= id })
	if i < len(r.all) && r.all[i].ID == id {
		return r.all[i], true
	}
	return nil, false
}

// Check returns ErrNoRules when nothing is left to scan with.
func (r *Registry) Check() error {
	if len(r.enabled) == 0 {
		return ErrNoRules
	}
	return nil
}

// Restrict returns a registry limited to the given categories.
func (r *Registry) Restrict(categories ...string) *Registry {
	if len(categories) == 0 {
		return r
	}
	want := map[string]bool{}
	for _, c := range categories {
		want[c] = true
	}
	out := &Registry{rejections: r.rejections, version: r.version}
	for _, rule := range r.all {
		if !want[rule.Category] {
			continue
		}
		out.all = append(out.all, rule)
		if rule.Enabled {
			out.enabled = append(out.enabled, rule)
		}
	}
	out.hash = hashRules(out.enabled)
	return out
}

func rulesetVersion(sources []Source, customized bool) string {
	v := semver.Version{}
	if len(sources) > 0 && sources[0].Version != "" {
		if parsed, err := semver.ParseTolerant(sources[0].Version); err == nil {
			v = parsed
		}
	}
	if customized {
		v.Build = []string{"custom"}
	}
	return v.String()
}

func hashRules(rs []*Rule) string {
	h := xxhash.New()
	for _, r := range rs {
		b, _ := json.Marshal(r.Definition())
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
