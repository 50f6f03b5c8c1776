package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceagent/internal/domain"
	"voiceagent/internal/logging"
)

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "kb.txt")
	other := filepath.Join(dir, "other.txt")
	writeFile(t, target, "initial")

	w, err := NewWatcher([]string{target}, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := w.Watch(ctx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(other, []byte("ignored"), 0644)
		os.WriteFile(target, []byte("modified"), 0644)
		os.WriteFile(target, []byte("modified again"), 0644)
	}()

	select {
	case change := <-changes:
		assert.Equal(t, target, change.Path)
		assert.False(t, change.Removed)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "kb.txt")
	writeFile(t, target, "initial")

	w, err := NewWatcher([]string{target}, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := w.Watch(ctx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.Remove(target)
	}()

	select {
	case change := <-changes:
		assert.Equal(t, target, change.Path)
		assert.True(t, change.Removed)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for removal")
	}
}

func TestWatcherClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{dir}, 0, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes := w.Watch(ctx)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	_, err := NewWatcher([]string{"/non/existent/dir/kb.txt"}, 0, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
