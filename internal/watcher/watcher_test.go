package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collector gathers delivered batches.
type collector struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (c *collector) handle(_ context.Context, events []ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, events)
	return nil
}

func (c *collector) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		for _, e := range b {
			out = append(out, filepath.Base(e.Path))
		}
	}
	return out
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	dir := t.TempDir()
	require.NoError(t, watcher.AddPath(dir))
	assert.Equal(t, []string{dir}, watcher.WatchList())

	file := filepath.Join(dir, "a.geojson")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"missing", filepath.Join(dir, "missing")},
		{"file", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := watcher.AddPath(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid path")
		})
	}
}

func TestFileWatcherDeliversFilteredBatches(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, watcher.AddPath(dir))

	watcher.AddFilter(NoHiddenFilter)
	watcher.AddFilter(func(path string) bool { return filepath.Ext(path) == ".geojson" })
	c := &collector{}
	watcher.AddHandler(c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.geojson"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "states.geojson"), []byte("{}"), 0o644))

	assert.Eventually(t, func() bool {
		return len(c.paths()) > 0
	}, 2*time.Second, 20*time.Millisecond)
	for _, p := range c.paths() {
		assert.Equal(t, "states.geojson", p)
	}

	cancel()
	require.NoError(t, watcher.Stop())
	watcher.Wait()
}

func TestFileWatcherHandlerErrorDoesNotStopDelivery(t *testing.T) {
	watcher, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, watcher.AddPath(dir))

	c := &collector{}
	watcher.AddHandler(func(context.Context, []ChangeEvent) error { return errors.New("boom") })
	watcher.AddHandler(c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))
	assert.Eventually(t, func() bool { return len(c.paths()) > 0 }, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, watcher.Stop())
	watcher.Wait()
}

func TestStopIsIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	require.NoError(t, watcher.Stop())
	require.NoError(t, watcher.Stop())
	watcher.Wait()
}

func TestDebouncerCoalescesAndDeduplicates(t *testing.T) {
	debouncer := &Debouncer{
		delay:   50 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		debouncer.start(ctx)
	}()

	debouncer.events <- ChangeEvent{Path: "b.geojson", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "b.geojson", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "a.geojson", Type: EventTypeModified}

	select {
	case batch := <-debouncer.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.geojson", batch[0].Path)
		assert.Equal(t, "b.geojson", batch[1].Path)
		assert.Equal(t, EventTypeModified, batch[1].Type, "last event per path wins")
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}

	cancel()
	<-done
}

func TestDebouncerStoppedDropsPending(t *testing.T) {
	debouncer := &Debouncer{
		delay:  time.Hour,
		output: make(chan []ChangeEvent, 1),
	}
	debouncer.addEvent(ChangeEvent{Path: "a.json"})
	debouncer.stop()
	debouncer.flush()
	debouncer.addEvent(ChangeEvent{Path: "b.json"})

	assert.Empty(t, debouncer.pending)
	assert.Empty(t, debouncer.output)
}

func TestNoHiddenFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"boundary/states.geojson", true},
		{"boundary/states.meta.json", true},
		{"boundary/.states.geojson", false},
		{"boundary/states.geojson~", false},
		{"boundary/.states.geojson.swp", false},
		{"boundary/states.swx", false},
		{"boundary/upload.TMP", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoHiddenFilter(tc.path))
		})
	}
}
