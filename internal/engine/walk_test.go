package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakscan/cloakscan/internal/types"
)

func walkAll(t *testing.T, cfg Config) ([]string, []types.SkippedFile) {
	t.Helper()
	var got []string
	var skipped []types.SkippedFile
	err := Walk(context.Background(), cfg, func(fd FileDescriptor) error {
		got = append(got, fd.RelPath)
		return nil
	}, func(s types.SkippedFile) { skipped = append(skipped, s) })
	require.NoError(t, err)
	sort.Strings(got)
	return got, skipped
}

func TestWalk_DefaultExcludesAndIgnoreFiles(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.go":                 "package main",
		"node_modules/x/index.js": "x",
		"vendor/lib.go":           "x",
		"app.min.js":              "x",
		"yarn.lock":               "x",
		"logs/debug.log":          "x",
		"svc/.gitignore":          "generated/\n",
		"svc/generated/out.go":    "x",
		"svc/handler.go":          "x",
		".cloakscanignore":        "fixtures/\n",
		"fixtures/sample.env":     "x",
		".gitignore":              "*.log\n",
		".git/config":             "x",
	})

	got, _ := walkAll(t, Config{Root: root, DefaultExcludes: true, Gitignore: true})
	assert.Equal(t, []string{".cloakscanignore", ".gitignore", "main.go", "svc/.gitignore", "svc/handler.go"}, got)

	got, _ = walkAll(t, Config{Root: root})
	assert.Contains(t, got, "vendor/lib.go")
	assert.Contains(t, got, "logs/debug.log")
	assert.NotContains(t, got, "fixtures/sample.env", ".cloakscanignore always applies")
	assert.NotContains(t, got, ".git/config")
}

func TestWalk_Globs(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a/keep.go":      "x",
		"a/skip_test.go": "x",
		"b/keep.py":      "x",
		"c/readme.md":    "x",
	})
	got, _ := walkAll(t, Config{Root: root, Include: SplitGlobs("**/*.go, *.py"), Exclude: SplitGlobs("*_test.go")})
	assert.Equal(t, []string{"a/keep.go", "b/keep.py"}, got)
}

func TestWalk_MaxBytes(t *testing.T) {
	root := writeFiles(t, map[string]string{"small.txt": "x", "large.txt": string(make([]byte, 100))})
	got, skipped := walkAll(t, Config{Root: root, MaxBytes: 10})
	assert.Equal(t, []string{"small.txt"}, got)
	assert.Equal(t, []types.SkippedFile{{Path: "large.txt", Reason: types.SkipTooLarge}}, skipped)
}

func TestWalk_SymlinkCycle(t *testing.T) {
	root := writeFiles(t, map[string]string{"dir/file.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "dir"), filepath.Join(root, "dir", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "dir", "file.txt"), filepath.Join(root, "alias.txt")))

	got, skipped := walkAll(t, Config{Root: root})
	assert.Equal(t, []string{"dir/file.txt"}, got)
	assert.ElementsMatch(t, []types.SkippedFile{
		{Path: "alias.txt", Reason: types.SkipAlias},
		{Path: "dir/loop", Reason: types.SkipSymlink},
	}, skipped)
}

func TestWalk_SymlinkAliasKeepsRealPath(t *testing.T) {
	root := writeFiles(t, map[string]string{"b/secret.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "b"), filepath.Join(root, "a")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	got, skipped := walkAll(t, Config{Root: root})
	assert.Equal(t, []string{"b/secret.txt"}, got)
	assert.Equal(t, []types.SkippedFile{{Path: "a", Reason: types.SkipAlias}}, skipped)
}

func TestWalk_SymlinkOutsideRootFollowedOnce(t *testing.T) {
	outside := writeFiles(t, map[string]string{"shared/key.txt": "x"})
	root := writeFiles(t, map[string]string{"main.go": "x"})
	if err := os.Symlink(filepath.Join(outside, "shared"), filepath.Join(root, "one")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(outside, "shared"), filepath.Join(root, "two")))
	require.NoError(t, os.Symlink(outside, filepath.Join(outside, "shared", "up")))

	got, skipped := walkAll(t, Config{Root: root})
	assert.Equal(t, []string{"main.go", "one/key.txt"}, got)
	assert.ElementsMatch(t, []types.SkippedFile{
		{Path: "one/up", Reason: types.SkipSymlink},
		{Path: "two", Reason: types.SkipAlias},
	}, skipped)
}

func TestWalk_Cancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Walk(ctx, Config{Root: root}, func(FileDescriptor) error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountTargets(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.go": "x", "b/c.go": "x", "b/d.md": "x", "node_modules/e.js": "x"})
	n, err := CountTargets(Config{Root: root, DefaultExcludes: true, Include: []string{"**/*.go"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBinaryClassification(t *testing.T) {
	assert.True(t, binaryByName("assets/logo.PNG"))
	assert.True(t, binaryByName("lib/x.so"))
	assert.False(t, binaryByName("icons/logo.svg"))
	assert.False(t, binaryByName("main.go"))
	assert.True(t, looksBinary([]byte("abc\x00def")))
	assert.True(t, looksBinary([]byte("PK\x03\x04rest")))
	assert.False(t, looksBinary([]byte("plain text")))
}
