package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: before\n"), 0644))

	var reloads atomic.Int32
	var lastName atomic.Value

	w, err := NewWatcher(path, func(cfg *Config) {
		lastName.Store(cfg.Name)
		reloads.Add(1)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("name: after\n"), 0644))

	assert.Eventually(t, func() bool {
		return reloads.Load() > 0
	}, 3*time.Second, 20*time.Millisecond, "watcher should pick up the write")
	assert.Equal(t, "after", lastName.Load())
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: base\n"), 0644))

	var reloads atomic.Int32
	w, err := NewWatcher(path, func(*Config) { reloads.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	w.Stop()
	w.Stop() // second stop is a no-op
}

func TestWatcherStopWithoutStartClosesWatcher(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(filepath.Join(dir, "config.yaml"), nil)
	require.NoError(t, err)

	// Never started; Stop must still release the fsnotify handle.
	w.Stop()
	assert.Error(t, w.watcher.Add(dir), "underlying watcher should be closed")

	w.Stop() // still a no-op afterwards
}
