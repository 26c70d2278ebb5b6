package rules

import (
	"regexp"

	"github.com/cloakscan/cloakscan/internal/types"
)

// Kind tags how a rule's pattern is applied.
type Kind string

const (
	KindLiteral Kind = "literal"
	KindRegex   Kind = "regex"
	KindEntropy Kind = "entropy"
)

// Well-known categories.
const (
	CategorySecret     = "secret"
	CategoryCredential = "hardcoded-credential"
	CategoryInsecure   = "insecure-api"
)

// Definition is the serialized form of a rule as it appears in a rule
// document. Pointer fields distinguish "missing" from zero values.
type Definition struct {
	ID               string   `yaml:"id" json:"id" validate:"required,ruleid"`
	Category         string   `yaml:"category" json:"category" validate:"required"`
	Description      string   `yaml:"description,omitempty" json:"description,omitempty"`
	Kind             Kind     `yaml:"patternKind" json:"patternKind" validate:"required,oneof=literal regex entropy"`
	Pattern          string   `yaml:"pattern" json:"pattern" validate:"required"`
	Severity         string   `yaml:"severity" json:"severity" validate:"required,severity"`
	Confidence       *float64 `yaml:"confidence" json:"confidence" validate:"required,gte=0,lte=1"`
	MinLength        *int     `yaml:"minLength,omitempty" json:"minLength,omitempty" validate:"omitempty,gte=1"`
	EntropyThreshold *float64 `yaml:"entropyThreshold,omitempty" json:"entropyThreshold,omitempty" validate:"omitempty,gt=0,lte=8"`
	Enabled          *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Keywords         []string `yaml:"keywords,omitempty" json:"keywords,omitempty" validate:"dive,required"`
	Allowlist        []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty" validate:"dive,required"`
	PathExcludes     []string `yaml:"pathExcludes,omitempty" json:"pathExcludes,omitempty" validate:"dive,required"`
}

// Rule is a validated, compiled detection rule. Rules are shared read-only
// by every worker of a scan and must not be modified after construction.
type Rule struct {
	ID               string
	Category         string
	Description      string
	Kind             Kind
	Pattern          string
	Severity         types.Severity
	Confidence       float64
	MinLength        int
	EntropyThreshold float64
	Enabled          bool
	Keywords         []string
	PathExcludes     []string
	Source           string

	re        *regexp.Regexp
	literal   []byte
	allowlist []*regexp.Regexp
}

// Regexp returns the compiled pattern for regex rules and the context
// pattern for entropy rules. It is nil for literal rules.
func (r *Rule) Regexp() *regexp.Regexp { return r.re }

// Literal returns the byte pattern of a literal rule.
func (r *Rule) Literal() []byte { return r.literal }

// Allowed reports whether match is covered by the rule's allowlist and
// returns the allowlist entry that matched.
func (r *Rule) Allowed(match string) (string, bool) {
	for _, a := range r.allowlist {
		if a.MatchString(match) {
			return a.String(), true
		}
	}
	return "", false
}

// Definition converts the rule back into its serialized form.
func (r *Rule) Definition() Definition {
	conf := r.Confidence
	enabled := r.Enabled
	d := Definition{
		ID:           r.ID,
		Category:     r.Category,
		Description:  r.Description,
		Kind:         r.Kind,
		Pattern:      r.Pattern,
		Severity:     string(r.Severity),
		Confidence:   &conf,
		Enabled:      &enabled,
		Keywords:     r.Keywords,
		PathExcludes: r.PathExcludes,
	}
	if r.Kind == KindEntropy {
		ml, th := r.MinLength, r.EntropyThreshold
		d.MinLength = &ml
		d.EntropyThreshold = &th
	}
	for _, a := range r.allowlist {
		d.Allowlist = append(d.Allowlist, a.String())
	}
	return d
}
