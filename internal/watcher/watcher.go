// Package watcher reports changes to the dataset and flyer directories, debounced so a
// burst of writes to one file (or one group of files) yields a single callback.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches directories and invokes callbacks on file changes.
type Watcher struct {
	roots       []string
	extensions  []string
	recursive   bool
	onChange    func(path string)
	onRemove    func(path string)
	debounce    time.Duration
	group       func(path string) string
	logger      *zap.Logger
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool
	exited      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a path must be quiet before its callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithGroup makes paths that map to the same key share one debounce timer; the callback
// receives the last changed path of the group.
func WithGroup(key func(path string) string) Option {
	return func(w *Watcher) { w.group = key }
}

// NewWatcher creates a watcher over roots. onChange fires for created or written files and
// onRemove for removed or renamed ones; either may be nil. extensions filter which files
// are reported (empty means all).
func NewWatcher(roots, extensions []string, recursive bool, onChange, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		recursive:   recursive,
		onChange:    onChange,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		group:       func(path string) string { return path },
		logger:      zap.NewNop(),
		debounceMap: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. It runs until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.logger.Debug("Watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	for _, root := range w.roots {
		if err := w.addRoot(fw, root); err != nil {
			_ = fw.Close()
			return err
		}
	}
	w.watcher = fw
	w.started = true
	w.exited = make(chan struct{})
	go w.run(ctx, fw, w.exited)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, exited chan struct{}) {
	defer close(exited)
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("Watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !matchExtension(path, w.extensions) {
			return
		}
		w.cancel(path)
		if w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and reports the
// files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				w.logger.Warn("Watcher failed to add directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	key := w.group(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.debounceMap[key]; ok {
		t.Stop()
	}
	w.debounceMap[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, key)
		w.mu.Unlock()
		w.logger.Debug("Watcher reporting change", zap.String("path", path))
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) cancel(path string) {
	key := w.group(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[key]; ok {
		t.Stop()
		delete(w.debounceMap, key)
	}
}

func (w *Watcher) addRoot(fw *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

// SyncExisting reports every matching file already present under the roots, synchronously.
func (w *Watcher) SyncExisting() {
	for _, root := range w.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !w.recursive && filepath.Dir(path) != filepath.Clean(root) {
				return nil
			}
			if matchExtension(path, w.extensions) && w.onChange != nil {
				w.onChange(path)
			}
			return nil
		})
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	for key, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, key)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
}

// Stop stops the watcher, drops pending callbacks and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	exited := w.exited
	w.mu.Unlock()
	w.shutdown()
	if exited != nil {
		<-exited
	}
}
