package resultcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDomain_FirstWriterWins(t *testing.T) {
	c := New("")

	stored, conflict := c.RecordDomain("example.com", true)
	assert.True(t, stored)
	assert.False(t, conflict)

	// A later differing write is reported but never overwrites.
	stored, conflict = c.RecordDomain("example.com", false)
	assert.True(t, stored)
	assert.True(t, conflict)

	// Same value again is a plain idempotent call.
	stored, conflict = c.RecordDomain("example.com", true)
	assert.True(t, stored)
	assert.False(t, conflict)

	deliverable, ok := c.LookupDomain("example.com")
	assert.True(t, ok)
	assert.True(t, deliverable)
}

func TestRecordEmail_FirstWriterWins(t *testing.T) {
	c := New("")

	stored, conflict := c.RecordEmail("a@example.com", false)
	assert.False(t, stored)
	assert.False(t, conflict)

	stored, conflict = c.RecordEmail("a@example.com", true)
	assert.False(t, stored)
	assert.True(t, conflict)

	exists, ok := c.LookupEmail("a@example.com")
	assert.True(t, ok)
	assert.False(t, exists)
}

func TestLookup_Miss(t *testing.T) {
	c := New("")

	_, ok := c.LookupDomain("unknown.example")
	assert.False(t, ok)

	_, ok = c.LookupEmail("nobody@unknown.example")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	c := New(path)
	c.RecordDomain("example.com", true)
	c.RecordDomain("dead.example", false)
	c.RecordEmail("a@example.com", true)
	c.RecordEmail("b@example.com", false)
	require.NoError(t, c.Persist())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())

	deliverable, ok := reloaded.LookupDomain("example.com")
	assert.True(t, ok)
	assert.True(t, deliverable)

	deliverable, ok = reloaded.LookupDomain("dead.example")
	assert.True(t, ok)
	assert.False(t, deliverable)

	exists, ok := reloaded.LookupEmail("a@example.com")
	assert.True(t, ok)
	assert.True(t, exists)

	exists, ok = reloaded.LookupEmail("b@example.com")
	assert.True(t, ok)
	assert.False(t, exists)

	domains, emails := reloaded.Len()
	assert.Equal(t, 2, domains)
	assert.Equal(t, 2, emails)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, c.Load())

	domains, emails := c.Len()
	assert.Zero(t, domains)
	assert.Zero(t, emails)
}

func TestLoad_CorruptFileIsReportedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(path)
	err := c.Load()
	assert.Error(t, err)

	// Cache stays usable and empty.
	domains, emails := c.Len()
	assert.Zero(t, domains)
	assert.Zero(t, emails)

	stored, conflict := c.RecordDomain("example.com", true)
	assert.True(t, stored)
	assert.False(t, conflict)
}

func TestNoPath_PersistAndLoadAreNoOps(t *testing.T) {
	c := New("")
	c.RecordDomain("example.com", true)
	assert.NoError(t, c.Persist())
	assert.NoError(t, c.Load())
}
