package detectors

import (
	"bytes"
	"math"
	"regexp"
	"sort"
)

// Candidate extraction for entropy rules. Values are runs of token
// characters either assigned to a name or enclosed in quotes.
var (
	reAssignment = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_.$-]*)["'\]]?\s*(?::=|=>|=|:)\s*["'` + "`" + `]?([A-Za-z0-9+/=_\-.~]+)`)
	reQuoted     = regexp.MustCompile(`"([^"\n]*)"|'([^'\n]*)'|` + "`([^`\n]*)`")
	reTokenRun   = regexp.MustCompile(`[A-Za-z0-9+/=_\-.~]+`)
	reName       = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_.$-]*`)
	rePathPart   = regexp.MustCompile(`^(?:[A-Za-z][a-z0-9_-]*|[a-z0-9_-]*)$`)
)

// nameWindow bounds how far before a quote the preceding name is looked up.
const nameWindow = 128

// maxCandidate bounds candidates so minified blobs are not scored as one token.
const maxCandidate = 512

// ShannonEntropy returns the entropy of s in bits per character over its
// character frequency distribution.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	count := map[rune]int{}
	n := 0
	for _, r := range s {
		count[r]++
		n++
	}
	h := 0.0
	for _, c := range count {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

type candidate struct {
	start, end int
	entropy    float64
}

// entropyCandidates returns the flagged candidates for an entropy rule, with
// absolute byte offsets, in file order. Context is the rule's pattern and is
// matched against the name a value is bound to: the assignment target, the
// key of a key=value run, or the last name before a quoted string. A value
// with no name is checked against the empty string.
func entropyCandidates(f *File, context *regexp.Regexp, minLen int, threshold float64) []candidate {
	var out []candidate
	seen := map[int]bool{}
	consider := func(start, end int) {
		if seen[start] {
			return
		}
		n := end - start
		if n < minLen || n > maxCandidate {
			return
		}
		if isURL(f.Data, start) || isPath(f.Data[start:end]) {
			return
		}
		h := ShannonEntropy(string(f.Data[start:end]))
		if h <= threshold {
			return
		}
		seen[start] = true
		out = append(out, candidate{start: start, end: end, entropy: h})
	}
	named := func(names ...[]byte) bool {
		if context == nil {
			return true
		}
		for _, n := range names {
			if n != nil && context.Match(n) {
				return true
			}
		}
		return false
	}

	f.eachLine(func(off int, line []byte) {
		for _, m := range reAssignment.FindAllSubmatchIndex(line, -1) {
			s, e := m[4], m[5]
			key := line[m[2]:m[3]]
			if k := assignedAt(line[s:e]); k >= 0 {
				key, s = line[s:s+k], s+k+1
			}
			if named(key) {
				consider(off+s, off+e)
			}
		}
		for _, q := range reQuoted.FindAllSubmatchIndex(line, -1) {
			g := 2
			for g+1 < len(q) && q[g] < 0 {
				g += 2
			}
			if g+1 >= len(q) {
				continue
			}
			outer := nameBefore(line[:q[0]])
			inner := line[q[g]:q[g+1]]
			for _, t := range reTokenRun.FindAllIndex(inner, -1) {
				s, e := t[0], t[1]
				var key []byte
				if k := assignedAt(inner[s:e]); k >= 0 {
					key, s = inner[s:s+k], s+k+1
				}
				if named(key, outer) {
					consider(off+q[g]+s, off+q[g]+e)
				}
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// nameBefore returns the last name in the text preceding a quote, or an
// empty non-nil slice when there is none.
func nameBefore(prefix []byte) []byte {
	if len(prefix) > nameWindow {
		prefix = prefix[len(prefix)-nameWindow:]
	}
	all := reName.FindAllIndex(prefix, -1)
	if len(all) == 0 {
		return []byte{}
	}
	last := all[len(all)-1]
	return prefix[last[0]:last[1]]
}

// assignedAt returns the index of the first '=' in run that separates a key
// from a value, or -1. Trailing '=' runs are base64 padding.
func assignedAt(run []byte) int {
	i := bytes.IndexByte(run, '=')
	if i < 0 || len(bytes.TrimRight(run[i:], "=")) == 0 {
		return -1
	}
	return i
}

// isURL reports whether the candidate at start is the authority part of a URL.
func isURL(data []byte, start int) bool {
	return start > 0 && data[start-1] == ':' && bytes.HasPrefix(data[start:], []byte("//"))
}

// isPath reports whether v looks like a file path, import path or dotted
// name: separated by '/' or '.' into word segments with at most a leading
// capital each.
func isPath(v []byte) bool {
	if !bytes.ContainsAny(v, "/.") {
		return false
	}
	for _, seg := range bytes.FieldsFunc(v, func(r rune) bool { return r == '/' || r == '.' }) {
		if !rePathPart.Match(seg) {
			return false
		}
	}
	return true
}
