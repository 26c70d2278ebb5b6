package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloakscan/cloakscan/internal/types"
)

func gitRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func TestOpenStoreSaveReload(t *testing.T) {
	dir := gitRoot(t)
	db, err := Open(dir, "rules-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".git"), filepath.Dir(db.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(db.Path()), FilePrefix))
	assert.Equal(t, 0, db.Len())

	sum := Sum([]byte("content"))
	db.Store("a.txt", sum, []types.Finding{{RuleID: "r", Path: "a.txt"}})
	db.Store("gone.txt", Sum([]byte("x")), nil)
	require.NoError(t, db.Save())

	db2, err := Open(dir, "rules-1")
	require.NoError(t, err)
	assert.Equal(t, 2, db2.Len())
	got, ok := db2.Lookup("a.txt", sum)
	require.True(t, ok)
	assert.Equal(t, "r", got[0].RuleID)

	_, ok = db2.Lookup("a.txt", Sum([]byte("changed")))
	assert.False(t, ok)

	require.NoError(t, db2.Save())
	db3, err := Open(dir, "rules-1")
	require.NoError(t, err)
	assert.Equal(t, 1, db3.Len(), "entries not seen in the last run are pruned")
}

func TestOpen_RulesetsUseSeparateFiles(t *testing.T) {
	dir := gitRoot(t)
	full, err := Open(dir, "rules-full")
	require.NoError(t, err)
	full.Store("a.txt", "00", []types.Finding{{RuleID: "secret"}})
	require.NoError(t, full.Save())

	security, err := Open(dir, "rules-security")
	require.NoError(t, err)
	assert.NotEqual(t, full.Path(), security.Path())
	assert.Equal(t, 0, security.Len())
	security.Store("a.txt", "00", nil)
	require.NoError(t, security.Save())

	again, err := Open(dir, "rules-full")
	require.NoError(t, err)
	got, ok := again.Lookup("a.txt", "00")
	require.True(t, ok, "a scan with another ruleset leaves this cache intact")
	assert.Equal(t, "secret", got[0].RuleID)
}

func TestSave_RemovesStaleSiblings(t *testing.T) {
	dir := gitRoot(t)
	old, err := Open(dir, "old-rules")
	require.NoError(t, err)
	old.Store("a.txt", "00", nil)
	require.NoError(t, old.Save())
	past := time.Now().Add(-2 * staleAfter)
	require.NoError(t, os.Chtimes(old.Path(), past, past))

	cur, err := Open(dir, "new-rules")
	require.NoError(t, err)
	cur.Store("a.txt", "00", nil)
	require.NoError(t, cur.Save())

	_, err = os.Stat(old.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cur.Path())
	assert.NoError(t, err)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	db, err := Open(gitRoot(t), "k")
	require.NoError(t, err)
	db.Store("a", "1", []types.Finding{{RuleID: "r"}})
	got, _ := db.Lookup("a", "1")
	got[0].RuleID = "mutated"
	again, _ := db.Lookup("a", "1")
	assert.Equal(t, "r", again[0].RuleID)
}

func TestOpen_Corrupt(t *testing.T) {
	dir := gitRoot(t)
	require.NoError(t, os.WriteFile(defaultPath(dir, "k"), []byte("{"), 0o600))
	db, err := Open(dir, "k")
	assert.Error(t, err)
	require.NotNil(t, db)
	assert.Equal(t, 0, db.Len())
}
