// Package cache keeps per-file scan results between runs so unchanged files
// are not matched again. Entries are keyed by relative path and content
// hash and are only valid for the ruleset key they were recorded under.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cloakscan/cloakscan/internal/types"
)

// FilePrefix starts every cache file name. Each ruleset key gets its own
// file so alternating rule selections do not evict each other.
const FilePrefix = "cloakscan_cache_"

// staleAfter is the age past which cache files of other rulesets are removed.
const staleAfter = 30 * 24 * time.Hour

type Entry struct {
	Sum      string          `json:"sum"`
	Findings []types.Finding `json:"findings"`
}

type file struct {
	Ruleset string           `json:"ruleset"`
	Entries map[string]Entry `json:"entries"`
}

// DB is safe for concurrent use by scan workers.
type DB struct {
	mu      sync.Mutex
	path    string
	ruleset string
	entries map[string]Entry
	seen    map[string]bool
	dirty   bool
}

func defaultPath(root, ruleset string) string {
	key := fmt.Sprintf("%016x", xxhash.Sum64String(ruleset))
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, FilePrefix+key+".json")
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "cloakscan", FilePrefix+fmt.Sprintf("%016x", xxhash.Sum64String(root))+"_"+key+".json")
}

// Open loads the cache for root. A missing or unreadable cache, or one
// recorded under a different ruleset key, yields an empty DB.
func Open(root, ruleset string) (*DB, error) {
	db := &DB{path: defaultPath(root, ruleset), ruleset: ruleset, entries: map[string]Entry{}, seen: map[string]bool{}}
	b, err := os.ReadFile(db.path)
	if errors.Is(err, os.ErrNotExist) {
		return db, nil
	}
	if err != nil {
		return db, err
	}
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return db, fmt.Errorf("parse cache %s: %w", db.path, err)
	}
	if f.Ruleset == ruleset && f.Entries != nil {
		db.entries = f.Entries
	}
	return db, nil
}

// Path returns the cache file location.
func (db *DB) Path() string { return db.path }

// Len returns the number of entries.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.entries)
}

// Sum hashes file content for use as a cache key.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Lookup returns a copy of the findings recorded for rel when its content
// hash still matches.
func (db *DB) Lookup(rel, sum string) ([]types.Finding, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.entries[rel]
	if !ok || e.Sum != sum {
		return nil, false
	}
	db.seen[rel] = true
	return append([]types.Finding(nil), e.Findings...), true
}

// Store records the findings of rel.
func (db *DB) Store(rel, sum string, fs []types.Finding) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries[rel] = Entry{Sum: sum, Findings: append([]types.Finding(nil), fs...)}
	db.seen[rel] = true
	db.dirty = true
}

// Save writes the cache, dropping entries for files not seen in this run.
func (db *DB) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for rel := range db.entries {
		if !db.seen[rel] {
			delete(db.entries, rel)
			db.dirty = true
		}
	}
	if !db.dirty {
		return nil
	}
	b, err := json.Marshal(file{Ruleset: db.ruleset, Entries: db.entries})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(db.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(db.path, b, 0o600); err != nil {
		return err
	}
	db.dirty = false
	db.removeStale()
	return nil
}

// removeStale deletes sibling cache files of the same root that have not
// been written for staleAfter.
func (db *DB) removeStale() {
	name := filepath.Base(db.path)
	prefix := name[:strings.LastIndexByte(name, '_')+1]
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(db.path), prefix+"*.json"))
	for _, m := range matches {
		if m == db.path {
			continue
		}
		if st, err := os.Stat(m); err == nil && time.Since(st.ModTime()) > staleAfter {
			_ = os.Remove(m)
		}
	}
}
