package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, name, body string) Source {
	t.Helper()
	src, err := Parse(name, []byte(body))
	require.NoError(t, err)
	return src
}

func TestBuiltin_AllRulesValid(t *testing.T) {
	reg := NewRegistry(Options{}, Builtin())
	assert.Empty(t, reg.Rejections())
	require.NoError(t, reg.Check())
	assert.Equal(t, "1.2.0", reg.Version())
	for i := 1; i < len(reg.Rules()); i++ {
		assert.Less(t, reg.Rules()[i-1].ID, reg.Rules()[i].ID)
	}
	for _, r := range reg.Rules() {
		assert.Equal(t, BuiltinSource, r.Source)
	}
}

func TestNewRegistry_OneMalformedAmongFive(t *testing.T) {
	src := mustParse(t, "custom.yml", `
rules:
  - {id: r1, category: secret, patternKind: literal, pattern: AAA, severity: low, confidence: 0.5}
  - {id: r2, category: secret, patternKind: regex, pattern: 'b+c', severity: high, confidence: 0.9}
  - {id: r3, category: secret, patternKind: entropy, pattern: 'key', severity: medium, confidence: 0.6}
  - {id: r4, category: insecure-api, patternKind: literal, pattern: eval(, severity: info, confidence: 1}
  - {id: bad, category: secret, patternKind: regex, pattern: '([a-z', severity: high, confidence: 0.9}
  - {id: r5, category: secret, patternKind: regex, pattern: 'x{2}', severity: critical, confidence: 0}
`)
	reg := NewRegistry(Options{}, src)
	require.Len(t, reg.Rules(), 5)
	require.Len(t, reg.Rejections(), 1)
	assert.Equal(t, "bad", reg.Rejections()[0].RuleID)
	assert.Equal(t, "custom.yml", reg.Rejections()[0].Source)
	assert.Contains(t, reg.Rejections()[0].Reason, "invalid pattern")
}

func TestNewRegistry_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		entry  string
		reason string
	}{
		{"empty pattern", `{id: x, category: secret, patternKind: literal, pattern: "  ", severity: low, confidence: 0.5}`, "pattern"},
		{"missing pattern", `{id: x, category: secret, patternKind: literal, severity: low, confidence: 0.5}`, "missing required field pattern"},
		{"confidence high", `{id: x, category: secret, patternKind: literal, pattern: a, severity: low, confidence: 1.5}`, "confidence out of range"},
		{"confidence negative", `{id: x, category: secret, patternKind: literal, pattern: a, severity: low, confidence: -0.1}`, "confidence out of range"},
		{"missing confidence", `{id: x, category: secret, patternKind: literal, pattern: a, severity: low}`, "missing required field confidence"},
		{"unknown kind", `{id: x, category: secret, patternKind: fuzzy, pattern: a, severity: low, confidence: 0.5}`, "patternKind"},
		{"unknown severity", `{id: x, category: secret, patternKind: literal, pattern: a, severity: urgent, confidence: 0.5}`, "severity"},
		{"bad allowlist", `{id: x, category: secret, patternKind: literal, pattern: a, severity: low, confidence: 0.5, allowlist: ['(']}`, "allowlist"},
		{"type error", `{id: x, category: secret, patternKind: literal, pattern: a, severity: low, confidence: [1]}`, "cannot unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := mustParse(t, "c.yml", "- "+tc.entry+"\n- {id: ok, category: secret, patternKind: literal, pattern: b, severity: low, confidence: 0.5}\n")
			reg := NewRegistry(Options{}, src)
			require.Len(t, reg.Rejections(), 1)
			assert.Equal(t, "x", reg.Rejections()[0].RuleID)
			assert.Contains(t, reg.Rejections()[0].Reason, tc.reason)
			require.Len(t, reg.Rules(), 1)
			assert.Equal(t, "ok", reg.Rules()[0].ID)
		})
	}
}

func TestNewRegistry_CustomOverridesBuiltin(t *testing.T) {
	custom := mustParse(t, "custom.yml", `
rules:
  - id: jwt
    category: secret
    patternKind: literal
    pattern: TOKEN
    severity: low
    confidence: 0.2
`)
	reg := NewRegistry(Options{}, Builtin(), custom)
	r, ok := reg.Lookup("jwt")
	require.True(t, ok)
	assert.Equal(t, KindLiteral, r.Kind)
	assert.Equal(t, "custom.yml", r.Source)
	assert.Empty(t, r.Keywords, "override replaces the rule entirely")
	assert.Equal(t, "1.2.0+custom", reg.Version())
}

func TestNewRegistry_InvalidOverrideKeepsBuiltin(t *testing.T) {
	custom := mustParse(t, "custom.yml", "- {id: jwt, category: secret, patternKind: regex, pattern: '(', severity: low, confidence: 0.2}\n")
	reg := NewRegistry(Options{}, Builtin(), custom)
	r, ok := reg.Lookup("jwt")
	require.True(t, ok)
	assert.Equal(t, BuiltinSource, r.Source)
	assert.Len(t, reg.Rejections(), 1)
}

func TestNewRegistry_DisabledRuleRemoved(t *testing.T) {
	custom := mustParse(t, "custom.yml", "- {id: jwt, category: secret, patternKind: literal, pattern: x, severity: low, confidence: 0.2, enabled: false}\n")
	base := NewRegistry(Options{}, Builtin())
	reg := NewRegistry(Options{}, Builtin(), custom)
	assert.Len(t, reg.Rules(), len(base.Rules())-1)
	for _, r := range reg.Rules() {
		assert.NotEqual(t, "jwt", r.ID)
	}
	_, ok := reg.Lookup("jwt")
	assert.True(t, ok, "disabled rules stay listable")
	assert.NotEqual(t, base.Hash(), reg.Hash())
}

func TestNewRegistry_DuplicateInSourceRejectsLater(t *testing.T) {
	src := mustParse(t, "c.yml", `
- {id: dup, category: secret, patternKind: literal, pattern: first, severity: low, confidence: 0.5}
- {id: dup, category: secret, patternKind: literal, pattern: second, severity: low, confidence: 0.5}
`)
	reg := NewRegistry(Options{}, src)
	require.Len(t, reg.Rules(), 1)
	assert.Equal(t, "first", reg.Rules()[0].Pattern)
	require.Len(t, reg.Rejections(), 1)
	assert.Contains(t, reg.Rejections()[0].Reason, "duplicate")
}

func TestNewRegistry_NoRules(t *testing.T) {
	src := mustParse(t, "c.yml", "- {id: a, category: secret, patternKind: literal, pattern: x, severity: low, confidence: 0.5, enabled: false}\n")
	reg := NewRegistry(Options{}, src)
	assert.ErrorIs(t, reg.Check(), ErrNoRules)
}

func TestRegistry_HashStable(t *testing.T) {
	a := NewRegistry(Options{}, Builtin())
	b := NewRegistry(Options{}, Builtin())
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)
}

func TestRegistry_Restrict(t *testing.T) {
	reg := NewRegistry(Options{}, Builtin()).Restrict(CategoryInsecure)
	require.NotEmpty(t, reg.Rules())
	for _, r := range reg.Rules() {
		assert.Equal(t, CategoryInsecure, r.Category)
	}
}

func TestCompile_EntropyDefaults(t *testing.T) {
	conf := 0.5
	d := Definition{ID: "e", Category: "secret", Kind: KindEntropy, Pattern: "key", Severity: "medium", Confidence: &conf}
	r, err := Compile(d, "t", EntropyDefaults{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinLength, r.MinLength)
	assert.InDelta(t, DefaultEntropyThreshold, r.EntropyThreshold, 1e-9)

	r, err = Compile(d, "t", EntropyDefaults{MinLength: 10, Threshold: 3})
	require.NoError(t, err)
	assert.Equal(t, 10, r.MinLength)
	assert.InDelta(t, 3.0, r.EntropyThreshold, 1e-9)
	assert.True(t, r.Enabled, "missing enabled means enabled")
}
