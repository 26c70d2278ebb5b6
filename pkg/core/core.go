package core

import (
	"context"

	"github.com/cloakscan/cloakscan/internal/engine"
	"github.com/cloakscan/cloakscan/internal/rules"
	"github.com/cloakscan/cloakscan/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type (
	Config          = engine.Config
	Finding         = types.Finding
	Result          = types.ScanResult
	Severity        = types.Severity
	Registry        = rules.Registry
	RuleOptions     = rules.Options
	EntropyDefaults = rules.EntropyDefaults
)

// Errors classified by callers as engine errors.
var (
	ErrInvalidRoot = engine.ErrInvalidRoot
	ErrNoRules     = rules.ErrNoRules
)

// SecurityCategories are the rule categories covered by a security scan.
var SecurityCategories = []string{rules.CategorySecret, rules.CategoryCredential, rules.CategoryInsecure}

// LoadRules builds the effective rule set: the built-in rules overlaid with
// the optional custom rule file at customPath.
func LoadRules(customPath string, opts RuleOptions) (*Registry, error) {
	return rules.Load(customPath, opts)
}

// Scan is the stable entrypoint for other programs. A nil registry scans with
// the built-in rules.
func Scan(ctx context.Context, cfg Config, reg *Registry) (Result, error) {
	if reg == nil {
		var err error
		if reg, err = LoadRules("", RuleOptions{Logger: cfg.Logger}); err != nil {
			return Result{}, err
		}
	}
	return engine.Scan(ctx, cfg, reg)
}

// ScanPath scans root with default settings and an optional custom rule file.
func ScanPath(ctx context.Context, root, customRules string) (Result, error) {
	reg, err := LoadRules(customRules, RuleOptions{})
	if err != nil {
		return Result{}, err
	}
	return Scan(ctx, Config{Root: root, DefaultExcludes: true, Gitignore: true}, reg)
}

// RuleIDs returns the IDs of the enabled rules of reg.
func RuleIDs(reg *Registry) []string {
	rs := reg.Rules()
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}
