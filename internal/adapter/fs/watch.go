package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"voiceagent/internal/domain"
)

// Change reports that a watched document was written or removed.
type Change struct {
	Path    string
	Removed bool
}

// Watcher reports changes to a set of documents. A target may be a file or
// a directory; for a directory every direct child is reported. Events are
// coalesced per path over the debounce window so an editor's
// write-rename-chmod burst yields one Change.
type Watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]struct{}
	dirs     map[string]struct{}
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(targets []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		debounce: debounce,
		logger:   logger,
	}

	// Files are watched through their parent directory so atomic saves,
	// which replace the inode, keep being seen.
	watched := make(map[string]struct{})
	for _, target := range targets {
		abs, err := filepath.Abs(target)
		if err != nil {
			fsw.Close()
			return nil, err
		}

		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dir = abs
			w.dirs[abs] = struct{}{}
		} else {
			w.files[abs] = struct{}{}
		}

		if _, ok := watched[dir]; ok {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, domain.NotFoundError("watch", fmt.Errorf("watch %s: %w", dir, err))
		}
		watched[dir] = struct{}{}
	}
	return w, nil
}

func (w *Watcher) matches(path string) bool {
	if _, ok := w.files[path]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(path)]
	return ok
}

// Watch emits coalesced changes until ctx is cancelled, then closes the
// returned channel.
func (w *Watcher) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change)

	go func() {
		defer close(out)

		pending := make(map[string]Change)
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Op == fsnotify.Chmod {
					continue
				}
				path := filepath.Clean(ev.Name)
				if !w.matches(path) {
					continue
				}
				pending[path] = Change{
					Path:    path,
					Removed: ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename),
				}
				fire = time.After(w.debounce)

			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("file watcher error", "error", err)

			case <-fire:
				fire = nil
				for path, change := range pending {
					delete(pending, path)
					// A rename away followed by a create is a save, not a removal.
					if change.Removed {
						if _, err := os.Stat(path); err == nil {
							change.Removed = false
						}
					}
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
