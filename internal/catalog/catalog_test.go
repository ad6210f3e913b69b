package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiltersReservedAndHidden(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"DEMO", "other", "Script", "Scripts", ".assetvault", ".hidden"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	// plain files at the top level are not projects
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	c := New(dir)
	names, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"DEMO", "other"}, names)
}

func TestListMissingRootIsEmpty(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope"))
	names, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "DEMO"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0o644))

	c := New(dir)
	assert.True(t, c.Exists("DEMO"))
	assert.False(t, c.Exists("file"))
	assert.False(t, c.Exists("missing"))
	assert.False(t, c.Exists("Scripts"))
	assert.False(t, c.Exists("../DEMO"))
}

func TestValidName(t *testing.T) {
	valid := []string{"DEMO", "shots_010", "a"}
	for _, n := range valid {
		assert.True(t, ValidName(n), "name %q", n)
	}
	invalid := []string{"", ".", "..", ".hidden", "Script", "Scripts", "a/b", "a\\b", "a\x00b"}
	for _, n := range invalid {
		assert.False(t, ValidName(n), "name %q", n)
	}
}
