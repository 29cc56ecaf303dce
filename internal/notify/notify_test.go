package notify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers events delivered by a watcher.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) add(evt Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d event(s)", n)
	return nil
}

func TestWriterThenWatcher(t *testing.T) {
	dir := t.TempDir()

	writer := NewEventWriter(dir)
	require.NoError(t, writer.Notify("completed", "suite-1", "chat-1"))

	// Events written before the watcher starts are drained on startup.
	c := &collector{}
	watcher := NewEventWatcher(dir, c.add)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	events := c.wait(t, 1)
	assert.Equal(t, "completed", events[0].Type)
	assert.Equal(t, "suite-1", events[0].SuiteID)
	assert.Equal(t, "chat-1", events[0].ChatID)

	// Live events arrive through fsnotify.
	require.NoError(t, writer.Notify("failed", "suite-2", "chat-1"))
	events = c.wait(t, 2)
	assert.Equal(t, "failed", events[1].Type)
	assert.Equal(t, "suite-2", events[1].SuiteID)

	// Consumed event files are removed.
	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatcherIgnoresInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	eventsDir := filepath.Join(dir, "events")
	require.NoError(t, os.MkdirAll(eventsDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(eventsDir, "garbage.event"), []byte("not json"), 0o600))

	c := &collector{}
	watcher := NewEventWatcher(dir, c.add)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	// The broken file is consumed without a callback; a valid one still
	// gets through.
	require.NoError(t, NewEventWriter(dir).Notify("aborted", "suite-3", "chat-9"))
	events := c.wait(t, 1)
	assert.Equal(t, "aborted", events[0].Type)
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeID("a/b:c"))
	assert.Equal(t, "plain", sanitizeID("plain"))
}
