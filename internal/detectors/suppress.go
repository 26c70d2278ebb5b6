package detectors

import (
	"regexp"
	"strings"
)

// Inline markers:
//
//	cloakscan:ignore                 this line, every rule
//	cloakscan:ignore=jwt,npm-token   this line, listed rules only
//	cloakscan:ignore-next-line[=ids] the following line
//	cloakscan:ignore-start / -end    every line of the region
//	cloakscan:ignore-file[=ids]      the whole file
//
// Suppressed findings are kept and flagged, never dropped.
var reMarker = regexp.MustCompile(`cloakscan:\s?ignore(-next-line|-start|-end|-file)?(?:=([A-Za-z0-9._,-]+))?`)

type directive struct {
	marker string
	ids    map[string]bool // nil means every rule
}

func (d directive) covers(id string) bool {
	return d.ids == nil || d.ids[id]
}

// Suppressions holds the parsed inline directives of one file.
type Suppressions struct {
	file  []directive
	lines map[int][]directive
}

// ParseSuppressions scans f for inline markers. An unterminated region
// extends to the end of the file.
func ParseSuppressions(f *File) *Suppressions {
	s := &Suppressions{lines: map[int][]directive{}}
	regionStart := 0
	line := 0
	f.eachLine(func(_ int, text []byte) {
		line++
		for _, m := range reMarker.FindAllSubmatch(text, -1) {
			d := directive{marker: string(m[0])}
			if len(m[2]) > 0 {
				d.ids = map[string]bool{}
				for _, id := range strings.Split(string(m[2]), ",") {
					if id != "" {
						d.ids[id] = true
					}
				}
			}
			switch string(m[1]) {
			case "":
				s.lines[line] = append(s.lines[line], d)
			case "-next-line":
				s.lines[line+1] = append(s.lines[line+1], d)
			case "-file":
				s.file = append(s.file, d)
			case "-start":
				if regionStart == 0 {
					regionStart = line
				}
			case "-end":
				if regionStart > 0 {
					s.region(regionStart, line)
					regionStart = 0
				}
			}
		}
	})
	if regionStart > 0 {
		s.region(regionStart, line)
	}
	return s
}

func (s *Suppressions) region(from, to int) {
	d := directive{marker: "cloakscan:ignore-start"}
	for l := from; l <= to; l++ {
		s.lines[l] = append(s.lines[l], d)
	}
}

// Covers reports whether a finding of rule id starting on line is
// suppressed, and by which marker.
func (s *Suppressions) Covers(line int, id string) (string, bool) {
	for _, d := range s.file {
		if d.covers(id) {
			return d.marker, true
		}
	}
	for _, d := range s.lines[line] {
		if d.covers(id) {
			return d.marker, true
		}
	}
	return "", false
}
