package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatch(t *testing.T) {
	dir := t.TempDir()
	ig := filepath.Join(dir, FileName)
	content := "node_modules/\n*.pem\n# comment\n\nsecret.env\n!keep.pem\n"
	if err := os.WriteFile(ig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(ig)
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"node_modules/pkg/index.js": true,
		"certs/key.pem":             true,
		"certs/keep.pem":            false,
		"secret.env":                true,
		"src/app.go":                false,
	}
	for p, want := range cases {
		if got := m.Match(p); got != want {
			t.Fatalf("Match(%q)=%v want %v", p, got, want)
		}
	}
}

func TestNestedDomain(t *testing.T) {
	var m Matcher
	m.patterns = append(m.patterns, Parse([]byte("*.log\n"), "")...)
	m.patterns = append(m.patterns, Parse([]byte("!debug.log\nlocal/\n"), "svc")...)

	if !m.Match("a.log") {
		t.Fatal("expected root pattern to apply")
	}
	if m.Match("svc/debug.log") {
		t.Fatal("expected nested negation to win")
	}
	if !m.Match("other/debug.log") {
		t.Fatal("nested negation must not leak outside its directory")
	}
	if !m.MatchPath("svc/local", true) {
		t.Fatal("expected nested directory pattern")
	}
	if m.MatchPath("local", true) {
		t.Fatal("nested directory pattern must not apply at root")
	}
}

func TestZeroMatcher(t *testing.T) {
	var m Matcher
	if m.Match("anything") || m.Len() != 0 {
		t.Fatal("zero matcher must match nothing")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
