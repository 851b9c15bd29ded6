// Package watch waits for changes under a set of declared paths. It backs
// the continuous build mode.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/markovbuild/internal/ctxlog"
)

// DefaultDebounce is the quiet period after the last change before Wait returns.
const DefaultDebounce = 300 * time.Millisecond

// Watcher observes files and directory trees.
type Watcher struct {
	fs       *fsnotify.Watcher
	roots    []string
	debounce time.Duration
}

// New starts watching paths. Directories are watched recursively. A path
// that does not exist yet is watched through its nearest existing parent.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, debounce: debounce}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.roots = append(w.roots, abs)
		if err := w.addPath(abs); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) addPath(p string) error {
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		parent := filepath.Dir(p)
		if parent == p {
			return nil
		}
		return w.addPath(parent)
	case err != nil:
		return err
	case info.IsDir():
		return w.addRecursive(p)
	default:
		return w.fs.Add(filepath.Dir(p))
	}
}

// addRecursive adds the directory and all its subdirectories to the watcher.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil && !errors.Is(err, fs.ErrPermission) {
				return err
			}
		}
		return nil
	})
}

// relevant reports whether path is a watched root or lies under one.
func (w *Watcher) relevant(path string) bool {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Wait blocks until at least one relevant change happened and no further
// change arrived for the debounce period. It returns the changed paths in
// lexical order.
func (w *Watcher) Wait(ctx context.Context) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	changed := make(map[string]struct{})

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
				}
			}
			if event.Op == fsnotify.Chmod || !w.relevant(event.Name) {
				continue
			}
			logger.Debug("Change detected.", "path", event.Name, "op", event.Op.String())
			changed[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			logger.Warn("File watcher error.", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			return paths, nil
		}
	}
}
