package score

import (
	"bytes"
	"path/filepath"
	"sort"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// maxLexBytes bounds the files handed to a lexer; larger files use the
// line heuristic only.
const maxLexBytes = 1 << 20

type span struct{ start, end int }

// commentSpans tokenises data with the lexer matching path and returns the
// byte ranges of comment tokens. ok is false when no lexer applies.
func commentSpans(path string, data []byte) (spans []span, ok bool) {
	if len(data) > maxLexBytes {
		return nil, false
	}
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return nil, false
	}
	it, err := chroma.Coalesce(lexer).Tokenise(&chroma.TokeniseOptions{State: "root"}, string(data))
	if err != nil {
		return nil, false
	}
	off := 0
	for tok := it(); tok != chroma.EOF; tok = it() {
		n := len(tok.Value)
		if n > 0 && tok.Type.InCategory(chroma.Comment) && !tok.Type.InSubCategory(chroma.CommentPreproc) {
			spans = append(spans, span{off, off + n})
		}
		off += n
	}
	return spans, true
}

func inSpans(spans []span, off int) bool {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].end > off })
	return i < len(spans) && spans[i].start <= off
}

var lineMarkers = [][]byte{[]byte("//"), []byte("#"), []byte("--"), []byte("/*"), []byte("<!--")}

// lineComment is the fallback used when no lexer is available: col is the
// 1-based byte column of the finding within line.
func lineComment(line []byte, col int) bool {
	trimmed := bytes.TrimLeft(line, " \t")
	if bytes.HasPrefix(trimmed, []byte("*")) && !bytes.HasPrefix(trimmed, []byte("*/")) {
		return true
	}
	before := line
	if col-1 < len(line) {
		before = line[:col-1]
	}
	for _, m := range lineMarkers {
		i := bytes.Index(before, m)
		if i < 0 {
			continue
		}
		if i > 0 && bytes.Equal(m, []byte("//")) && before[i-1] == ':' {
			continue // scheme separator, e.g. https://
		}
		if quotesBalanced(before[:i]) {
			return true
		}
	}
	return false
}

func quotesBalanced(b []byte) bool {
	return bytes.Count(b, []byte(`"`))%2 == 0 && bytes.Count(b, []byte(`'`))%2 == 0
}
