package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_ConsecutiveDuplicatesCollapse(t *testing.T) {
	s := New("")
	for _, cmd := range []string{"status", "status", "uptime", "status"} {
		s.Record(cmd)
	}
	assert.Equal(t, []string{"status", "uptime", "status"}, s.Entries())
}

func TestRecord_IgnoresBlank(t *testing.T) {
	s := New("")
	s.Record("   ")
	s.Record("")
	assert.Zero(t, s.Len())
}

func TestRecord_TrimsWhitespace(t *testing.T) {
	s := New("")
	s.Record("  status  ")
	s.Record("status")
	assert.Equal(t, []string{"status"}, s.Entries())
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())
}

func TestPersistAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist")

	s := New(path)
	s.Record("show channels")
	s.Record("status")
	require.NoError(t, s.Persist())

	// File format: one command per line, newest appended at end.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "show channels\nstatus\n", string(raw))

	loaded := New(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, []string{"show channels", "status"}, loaded.Entries())
}

func TestPersist_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "hist")
	s := New(path)
	s.Record("version")
	require.NoError(t, s.Persist())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestPersist_EmptyPathIsNoop(t *testing.T) {
	s := New("")
	s.Record("status")
	assert.NoError(t, s.Persist())
}

func TestRecord_AutoFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist")
	s := New(path)

	for i := 0; i < flushEvery; i++ {
		s.Record(string(rune('a' + i)))
	}

	loaded := New(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, flushEvery, loaded.Len())
}
