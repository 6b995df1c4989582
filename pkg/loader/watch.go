package loader

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	vos "github.com/vizrig/vizrig/pkg/os"
)

// settle is how long the module file must stay quiet before a reload,
// compilers write it in several steps.
const settle = 150 * time.Millisecond

type watchState struct {
	mu     sync.Mutex
	active bool
	last   time.Time
}

func (w *watchState) touch(t time.Time) {
	w.mu.Lock()
	w.last = t
	w.mu.Unlock()
}

func (w *watchState) clear() {
	w.mu.Lock()
	w.last = time.Time{}
	w.mu.Unlock()
}

// settled is true when there is a quiet change, or always when nothing
// watches the file and it has to be polled.
func (w *watchState) settled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return true
	}
	return !w.last.IsZero() && now.Sub(w.last) >= settle
}

// Watch follows the module file until ctx is done.
// The directory is watched since editors and linkers replace files.
func (l *Loader) Watch(ctx context.Context) error {
	path, err := filepath.Abs(l.conf.Module)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}
	l.watch.mu.Lock()
	l.watch.active = true
	l.watch.mu.Unlock()

	go func() {
		defer func() {
			_ = watcher.Close()
			l.watch.mu.Lock()
			l.watch.active = false
			l.watch.mu.Unlock()
			l.log.Debug().Msg("module watch has ended")
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					l.watch.touch(time.Now())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Warn().Err(err).Msg("module watch")
			}
		}
	}()
	return nil
}

// Changed tells if the module file is newer than the loaded one.
func (l *Loader) Changed() bool {
	if !l.watch.settled(time.Now()) {
		return false
	}
	mod := vos.ModTime(l.conf.Module)
	if mod.IsZero() {
		return false
	}
	if !mod.After(l.modTime) {
		l.watch.clear()
		return false
	}
	return true
}
