package engine

import (
	"mime"
	"path"
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
)

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"coverage":     true,
	".next":        true,
	".terraform":   true,
}

// suffixes treated as generated or noisy artifacts when default excludes are enabled
var defaultExcludeFileSuffixes = []string{
	".min.js", ".min.css", ".map",
	".pb.go", ".gen.go",
}

// suffixes classified as binary without reading content
var binarySuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".bmp",
	".pdf", ".zip", ".gz", ".tar", ".tgz", ".7z", ".xz", ".bz2",
	".jar", ".class", ".exe", ".dll", ".so", ".dylib", ".o", ".a",
	".wasm", ".pyc", ".woff", ".woff2", ".ttf", ".otf", ".mp3", ".mp4",
}

// exact filenames commonly safe to exclude when default excludes are enabled
var defaultExcludeFileNames = map[string]bool{
	"yarn.lock":         true,
	"package-lock.json": true,
	"pnpm-lock.yaml":    true,
	"composer.lock":     true,
	"poetry.lock":       true,
	"go.sum":            true,
	".DS_Store":         true,

	".cloakscan-rules.yml":    true,
	"cloakscan.baseline.json": true,
}

func isDefaultDirExcluded(name string) bool {
	return defaultExcludeDirs[name]
}

func isDefaultFileExcluded(rel string) bool {
	base := path.Base(rel)
	if defaultExcludeFileNames[base] {
		return true
	}
	lower := strings.ToLower(base)
	for _, s := range defaultExcludeFileSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// binaryByName classifies files by extension or MIME type alone.
func binaryByName(rel string) bool {
	lower := strings.ToLower(rel)
	for _, s := range binarySuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	if ct := mime.TypeByExtension(filepath.Ext(lower)); ct != "" {
		if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "font/") {
			return ct != "image/svg+xml"
		}
	}
	return false
}

// looksBinary sniffs the leading bytes for NULs and well-known magic numbers.
func looksBinary(b []byte) bool {
	const sniff = 8000
	n := min(len(b), sniff)
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return true
		}
	}
	if len(b) >= 8 && string(b[:8]) == "\x89PNG\r\n\x1a\n" {
		return true
	}
	if len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4 {
		return true
	}
	return false
}

// allowedByGlobs reports whether a slash-separated relative path passes the
// include and exclude globs. Includes, if any, act as a positive filter;
// excludes are subtracted last. A glob also matches against the base name.
func allowedByGlobs(rel string, includes, excludes []string) bool {
	if len(includes) > 0 && !matchAnyGlob(rel, includes) {
		return false
	}
	return !(len(excludes) > 0 && matchAnyGlob(rel, excludes))
}

func matchAnyGlob(rel string, globs []string) bool {
	for _, g := range globs {
		g = strings.TrimPrefix(g, "./")
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

// SplitGlobs parses a comma-separated glob list.
func SplitGlobs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
