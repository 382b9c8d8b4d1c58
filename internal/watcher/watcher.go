// Package watcher keeps the index in sync with directories on disk: file changes are
// debounced and handed to a single worker that re-indexes or deletes the file.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce  = 400 * time.Millisecond
	defaultQueueSize = 256
)

var errStopped = errors.New("watcher is stopped")

// Sink receives the file changes. *indexer.Indexer satisfies it.
type Sink interface {
	IndexFile(ctx context.Context, path string, allowedExts []string) (skipped bool, err error)
	DeleteFile(ctx context.Context, path string) error
}

type change struct {
	path   string
	remove bool
}

// Watcher watches directories and forwards file changes to a Sink.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	sink       Sink
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	queue   chan change
	started bool
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before it is re-indexed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. extensions filter which files are forwarded
// (empty = all); recursive also watches subdirectories, skipping hidden ones.
func NewWatcher(roots []string, extensions []string, recursive bool, sink Sink, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  recursive,
		sink:       sink,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		queue:      make(chan change, defaultQueueSize),
		done:       make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching; missing roots are created. It returns once the roots are
// registered and events are handled in the background until ctx is cancelled or Stop is
// called. A stopped Watcher cannot be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errStopped
	}
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	w.wg.Add(2)
	go w.run(ctx, fsw)
	go w.work(ctx)
	return nil
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
		info, err = os.Stat(root)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory: " + root)
	}
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.shutdownLocked()
			w.mu.Unlock()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.recursive && !strings.HasPrefix(info.Name(), ".") {
				if err := w.addTree(fsw, path); err != nil {
					w.logger.Warn("watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
				w.syncDirectory(path)
			}
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(change{path: path})
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if matchExtension(path, w.extensions) {
			w.schedule(change{path: path, remove: true})
		}
	}
}

// schedule (re)starts the debounce timer for a path; the latest change wins.
func (w *Watcher) schedule(c change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[c.path]; ok {
		t.Stop()
	}
	w.pending[c.path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, c.path)
		w.mu.Unlock()
		select {
		case w.queue <- c:
		case <-w.done:
		}
	})
}

// work applies queued changes one at a time so index updates never overlap.
func (w *Watcher) work(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case c := <-w.queue:
			w.apply(ctx, c)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, c change) {
	if c.remove {
		if err := w.sink.DeleteFile(ctx, c.path); err != nil {
			w.logger.Warn("watcher failed to delete file", zap.String("path", c.path), zap.Error(err))
			return
		}
		w.logger.Debug("watcher removed file", zap.String("path", c.path))
		return
	}
	skipped, err := w.sink.IndexFile(ctx, c.path, w.extensions)
	if err != nil {
		w.logger.Warn("watcher failed to index file", zap.String("path", c.path), zap.Error(err))
		return
	}
	w.logger.Debug("watcher indexed file", zap.String("path", c.path), zap.Bool("skipped", skipped))
}

func (w *Watcher) syncDirectory(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (!w.recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.schedule(change{path: path})
		}
		return nil
	})
}

// SyncExistingFiles queues every matching file under the roots. Files the index already
// holds unchanged are skipped by the sink.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.logger.Debug("watcher syncing directory", zap.String("root", root))
		w.syncDirectory(root)
	}
}

// Directories returns a copy of the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops watching, drops pending changes and waits for the worker to finish the
// change in progress. Cancelling the context passed to Start has the same effect, except
// that nothing waits for the worker.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.shutdownLocked()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) shutdownLocked() {
	if !w.started {
		return
	}
	w.started = false
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	_ = w.fsw.Close()
	w.logger.Debug("watcher stopped", zap.Strings("roots", w.roots))
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
