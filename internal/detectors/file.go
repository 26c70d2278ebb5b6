package detectors

import (
	"bytes"
	"sort"
)

// File is one file's content prepared for matching. A File is used by a
// single worker and is not safe for concurrent use.
type File struct {
	Path string // slash-separated, relative to the scan root
	Data []byte

	lineStarts []int
	lower      []byte
	supp       *Suppressions
}

// NewFile wraps data read from path.
func NewFile(path string, data []byte) *File {
	return &File{Path: path, Data: data}
}

func (f *File) starts() []int {
	if f.lineStarts == nil {
		f.lineStarts = []int{0}
		for i, b := range f.Data {
			if b == '\n' {
				f.lineStarts = append(f.lineStarts, i+1)
			}
		}
	}
	return f.lineStarts
}

// Position converts a byte offset to a 1-based line and byte column.
func (f *File) Position(off int) (line, col int) {
	ls := f.starts()
	i := sort.Search(len(ls), func(i int) bool { return ls[i] > off }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, off - ls[i] + 1
}

// LineText returns the content of a 1-based line without its newline.
func (f *File) LineText(line int) []byte {
	ls := f.starts()
	if line < 1 || line > len(ls) {
		return nil
	}
	start := ls[line-1]
	end := len(f.Data)
	if line < len(ls) {
		end = ls[line] - 1
	}
	return bytes.TrimSuffix(f.Data[start:end], []byte{'\r'})
}

func (f *File) eachLine(fn func(off int, line []byte)) {
	ls := f.starts()
	for i, start := range ls {
		end := len(f.Data)
		if i+1 < len(ls) {
			end = ls[i+1] - 1
		}
		fn(start, f.Data[start:end])
	}
}

func (f *File) lowered() []byte {
	if f.lower == nil {
		f.lower = bytes.ToLower(f.Data)
	}
	return f.lower
}

// Suppressions returns the inline suppression directives of the file.
func (f *File) Suppressions() *Suppressions {
	if f.supp == nil {
		f.supp = ParseSuppressions(f)
	}
	return f.supp
}
