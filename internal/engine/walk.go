package engine

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloakscan/cloakscan/internal/ignore"
	"github.com/cloakscan/cloakscan/internal/logger"
	"github.com/cloakscan/cloakscan/internal/types"
)

// FileDescriptor identifies one eligible file. Binary is the name-based
// classification; content sniffing happens when the file is read.
type FileDescriptor struct {
	Path    string // OS path used for reading
	RelPath string // slash-separated, relative to the scan root
	Size    int64
	Binary  bool
}

type walker struct {
	cfg      Config
	log      zerolog.Logger
	ign      ignore.Matcher
	realRoot string
	// visited holds resolved targets outside the root reached through a
	// symlink. Targets inside the root are always walked by their real path.
	visited map[string]bool
	emit    func(FileDescriptor) error
	skip    func(types.SkippedFile)
}

// Walk enumerates the eligible files under cfg.Root and calls emit for each.
// Files rejected for a reason worth reporting (too large, symlink cycle,
// unreadable) are passed to skip, which may be nil. A symlink is followed
// only when its target lies outside the root and was not reached before;
// links into the root are reported as aliases and links to an ancestor of
// the current directory as cycles. Walk stops early and returns the error
// when emit fails or ctx is done.
func Walk(ctx context.Context, cfg Config, emit func(FileDescriptor) error, skip func(types.SkippedFile)) error {
	if skip == nil {
		skip = func(types.SkippedFile) {}
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	w := &walker{
		cfg:      cfg,
		log:      logger.Component(cfg.Logger, "walk"),
		realRoot: realRoot,
		visited:  map[string]bool{},
		emit:     emit,
		skip:     skip,
	}
	if err := w.ign.AddFile(filepath.Join(root, ignore.FileName), ""); err == nil {
		w.log.Debug().Int("patterns", w.ign.Len()).Msg("loaded " + ignore.FileName)
	}
	return w.dir(ctx, root, realRoot, "")
}

func (w *walker) dir(ctx context.Context, osDir, realDir, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.cfg.Gitignore {
		_ = w.ign.AddFile(filepath.Join(osDir, ".gitignore"), rel)
	}
	entries, err := os.ReadDir(osDir)
	if err != nil {
		w.log.Debug().Err(err).Str("dir", rel).Msg("unreadable directory")
		w.skip(types.SkippedFile{Path: relOrDot(rel), Reason: types.SkipUnreadable})
		return nil
	}
	for _, e := range entries {
		name := e.Name()
		childOS := filepath.Join(osDir, name)
		childRel := path.Join(rel, name)

		isDir := e.IsDir()
		realChild := filepath.Join(realDir, name)
		var size int64 = -1

		link := e.Type()&fs.ModeSymlink != 0
		switch {
		case link:
			target, err := filepath.EvalSymlinks(childOS)
			if err != nil {
				w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipUnreadable})
				continue
			}
			st, err := os.Stat(target)
			if err != nil || !(st.IsDir() || st.Mode().IsRegular()) {
				continue
			}
			isDir, realChild, size = st.IsDir(), target, st.Size()
		case isDir, e.Type().IsRegular():
		default:
			continue
		}

		if isDir {
			if name == ".git" || (w.cfg.DefaultExcludes && isDefaultDirExcluded(name)) {
				continue
			}
			if w.ign.MatchPath(childRel, true) {
				continue
			}
			if link {
				if within(realChild, realDir) {
					w.log.Info().Str("path", childRel).Msg("skipping symlink cycle")
					w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipSymlink})
					continue
				}
				if !w.follow(realChild) {
					w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipAlias})
					continue
				}
			}
			if err := w.dir(ctx, childOS, realChild, childRel); err != nil {
				return err
			}
			continue
		}

		if !allowedByGlobs(childRel, w.cfg.Include, w.cfg.Exclude) || w.ign.Match(childRel) {
			continue
		}
		if w.cfg.DefaultExcludes && isDefaultFileExcluded(childRel) {
			continue
		}
		if link && !w.follow(realChild) {
			w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipAlias})
			continue
		}
		if size < 0 {
			info, err := e.Info()
			if err != nil {
				w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipUnreadable})
				continue
			}
			size = info.Size()
		}
		if w.cfg.MaxBytes > 0 && size > w.cfg.MaxBytes {
			w.skip(types.SkippedFile{Path: childRel, Reason: types.SkipTooLarge})
			continue
		}
		if err := w.emit(FileDescriptor{Path: childOS, RelPath: childRel, Size: size, Binary: binaryByName(childRel)}); err != nil {
			return err
		}
	}
	return nil
}

// follow reports whether a symlink target should be walked: it must lie
// outside the root and not have been reached through another link.
func (w *walker) follow(target string) bool {
	if within(w.realRoot, target) {
		return false
	}
	for v := range w.visited {
		if within(v, target) {
			return false
		}
	}
	w.visited[target] = true
	return true
}

// within reports whether dir is p or one of its ancestors.
func within(dir, p string) bool {
	return p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

func relOrDot(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}

// CountTargets returns the number of files Walk would deliver for cfg,
// without reading any of them.
func CountTargets(cfg Config) (int, error) {
	n := 0
	err := Walk(context.Background(), cfg, func(FileDescriptor) error {
		n++
		return nil
	}, nil)
	return n, err
}
