// Package ignore matches paths against gitignore-style pattern files such
// as .gitignore and .cloakscanignore.
package ignore

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the scanner-specific ignore file read from the scan root.
const FileName = ".cloakscanignore"

// Matcher holds patterns from any number of ignore files. The zero value
// matches nothing. Later patterns take precedence, so files from deeper
// directories must be added after their parents.
type Matcher struct {
	patterns []gitignore.Pattern
}

// Load reads a single ignore file whose patterns apply from the root.
func Load(path string) (Matcher, error) {
	var m Matcher
	err := m.AddFile(path, "")
	return m, err
}

// AddFile appends the patterns of the ignore file at path. dir is the
// slash-separated directory, relative to the scan root, that the file lives in.
func (m *Matcher) AddFile(path, dir string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.patterns = append(m.patterns, Parse(b, dir)...)
	return nil
}

// Parse turns ignore file content into patterns scoped to dir.
func Parse(data []byte, dir string) []gitignore.Pattern {
	var domain []string
	if dir != "" && dir != "." {
		domain = strings.Split(dir, "/")
	}
	var out []gitignore.Pattern
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, gitignore.ParsePattern(line, domain))
	}
	return out
}

// Len returns the number of loaded patterns.
func (m Matcher) Len() int { return len(m.patterns) }

// Match reports whether the slash-separated relative file path is ignored.
func (m Matcher) Match(rel string) bool { return m.MatchPath(rel, false) }

// MatchPath reports whether rel is ignored, treating it as a directory when isDir is set.
func (m Matcher) MatchPath(rel string, isDir bool) bool {
	if len(m.patterns) == 0 || rel == "" || rel == "." {
		return false
	}
	return gitignore.NewMatcher(m.patterns).Match(strings.Split(rel, "/"), isDir)
}
