package disk

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock starts at the real current time so it can be compared against
// file modification times, then advances without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), time.Hour, newFakeClock())
	require.NoError(t, err)

	require.NoError(t, c.Put("https://example.com/movie", []byte("<html>page</html>")))

	got, ok := c.Get("https://example.com/movie")
	require.True(t, ok)
	assert.Equal(t, []byte("<html>page</html>"), got)
}

func TestGetMissForUnknownKey(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), time.Hour, newFakeClock())
	require.NoError(t, err)

	_, ok := c.Get("never-stored")
	assert.False(t, ok)
}

func TestGetMissAfterTTLAndEvicts(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	root := t.TempDir()
	c, err := New(root, time.Hour, clk)
	require.NoError(t, err)

	require.NoError(t, c.Put("key", []byte("payload")))
	clk.Advance(2 * time.Hour)

	_, ok := c.Get("key")
	assert.False(t, ok)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "expired entry should be removed")
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c, err := New(root, time.Hour, newFakeClock())
	require.NoError(t, err)

	require.NoError(t, c.Put("key", []byte("payload")))

	matches, err := filepath.Glob(filepath.Join(root, ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPutOverwritesExistingEntry(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), time.Hour, newFakeClock())
	require.NoError(t, err)

	require.NoError(t, c.Put("key", []byte("old")))
	require.NoError(t, c.Put("key", []byte("new")))

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestNewRequiresRoot(t *testing.T) {
	t.Parallel()

	_, err := New("", time.Hour, newFakeClock())
	require.Error(t, err)
}

func TestEntriesSurviveReopen(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	clk := newFakeClock()

	first, err := New(root, time.Hour, clk)
	require.NoError(t, err)
	require.NoError(t, first.Put("key", []byte("payload")))

	second, err := New(root, time.Hour, clk)
	require.NoError(t, err)
	got, ok := second.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}
