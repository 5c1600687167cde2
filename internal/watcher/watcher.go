// Package watcher watches inbox directories with fsnotify and hands newly
// arrived files to a callback after a debounce period.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Inbox is a watched directory and the file extensions accepted from it.
type Inbox struct {
	Dir        string
	Extensions []string
}

// Watcher watches inbox directories and invokes onArrive for each new or
// rewritten file. Calls to onArrive never overlap.
type Watcher struct {
	inboxes     []Inbox
	onArrive    func(path string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	callMu      sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onArrive fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over inboxes. Inboxes with an empty Dir are skipped.
func New(inboxes []Inbox, onArrive func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		onArrive:    onArrive,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, in := range inboxes {
		if in.Dir == "" {
			continue
		}
		w.inboxes = append(w.inboxes, Inbox{Dir: filepath.Clean(in.Dir), Extensions: in.Extensions})
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts watching. Missing inbox directories are created. It runs until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, in := range w.inboxes {
		if err := os.MkdirAll(in.Dir, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		if err := watcher.Add(in.Dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("watcher starting", zap.Strings("dirs", w.Directories()), zap.Duration("debounce", w.debounce))
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		if w.accepts(path) {
			w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
			w.debounceArrival(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
	}
}

// accepts reports whether path sits directly in an inbox and has an accepted extension.
func (w *Watcher) accepts(path string) bool {
	dir := filepath.Dir(filepath.Clean(path))
	for _, in := range w.inboxes {
		if in.Dir == dir && MatchExtension(path, in.Extensions) {
			return true
		}
	}
	return false
}

// MatchExtension reports whether path has one of extensions (case-insensitive,
// leading dot optional). An empty list accepts everything.
func MatchExtension(path string, extensions []string) bool {
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

func (w *Watcher) debounceArrival(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.deliver(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// deliver runs onArrive with callMu held so arrivals are processed one at a time.
func (w *Watcher) deliver(path string) {
	if w.onArrive == nil {
		return
	}
	w.callMu.Lock()
	defer w.callMu.Unlock()
	w.logger.Debug("watcher delivering file", zap.String("path", path))
	w.onArrive(path)
}

// Directories returns the watched inbox directories.
func (w *Watcher) Directories() []string {
	dirs := make([]string, len(w.inboxes))
	for i, in := range w.inboxes {
		dirs[i] = in.Dir
	}
	return dirs
}

// SyncExisting delivers every accepted file already present in the inboxes,
// sorted by name within each inbox.
func (w *Watcher) SyncExisting() {
	for _, in := range w.inboxes {
		entries, err := os.ReadDir(in.Dir)
		if err != nil {
			w.logger.Warn("watcher sync failed", zap.String("dir", in.Dir), zap.Error(err))
			continue
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !MatchExtension(e.Name(), in.Extensions) {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			w.deliver(filepath.Join(in.Dir, name))
		}
	}
}

// Stop stops the watcher and releases resources. Pending debounced files are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for path, t := range w.debounceMap {
			t.Stop()
			delete(w.debounceMap, path)
		}
		close(w.done)
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
		w.started = false
	})
}
