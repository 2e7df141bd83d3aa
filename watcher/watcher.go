package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"plexscan-go/apperror"
	"plexscan-go/metrics"
)

// Options configures a Watcher.
type Options struct {
	QueueSize   int
	StopTimeout time.Duration
	Excludes    *Excluder
}

// Watcher monitors a directory tree recursively with fsnotify. Directories
// never produce events; directories created after Start are watched as
// they appear.
type Watcher struct {
	root     string
	resolved string // root with symlinks evaluated; dirs is keyed by it
	opts     Options
	logger   *slog.Logger

	events chan Signal

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	dirs    map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewWatcher creates a watcher for root. Nothing is installed until Start.
func NewWatcher(root string, opts Options, logger *slog.Logger) *Watcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:   root,
		opts:   opts,
		logger: logger.With("component", "watcher"),
		events: make(chan Signal, opts.QueueSize),
		dirs:   make(map[string]struct{}),
	}
}

// Events implements Source.
func (w *Watcher) Events() <-chan Signal {
	return w.events
}

// Start installs the watch. Any failure is an apperror.KindBackend error and
// leaves nothing running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyRunning
	}

	if strings.TrimSpace(w.root) == "" {
		return apperror.Backend("no watch directory configured", nil)
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return apperror.Backend("watch directory unavailable", err)
	}
	if !info.IsDir() {
		return apperror.Backend("watch path is not a directory", nil)
	}

	resolved, err := realRoot(w.root)
	if err != nil {
		return apperror.Backend("watch directory unavailable", err)
	}
	w.resolved = resolved

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperror.Backend("failed to create fsnotify watcher", err)
	}
	w.fsw = fsw

	if err := fsw.Add(resolved); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return apperror.Backend("failed to watch directory", err)
	}
	w.dirs[resolved] = struct{}{}
	w.addTreeLocked(resolved, false)

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(ctx, fsw, w.done)

	w.logger.Info("Filesystem watcher started", "root", w.root, "directories", len(w.dirs))
	return nil
}

// addTreeLocked adds every directory below dir to the watch. With emit set,
// files already present are reported as Added; they may have been written
// before the directory's watch was in place.
func (w *Watcher) addTreeLocked(dir string, emit bool) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != w.resolved && w.opts.Excludes.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if emit {
				w.emit(ChangeEvent{Path: path, Kind: Added, Time: time.Now()})
			}
			return nil
		}
		if _, ok := w.dirs[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Cannot watch directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		w.dirs[path] = struct{}{}
		return nil
	})
	if err != nil {
		w.logger.Warn("Failed to walk directory", "path", dir, "error", err)
	}
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			// fsnotify reports queue overflows here; the sweep picks up
			// whatever was lost.
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.opts.Excludes.Match(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		// stopping
		return
	}

	_, isDir := w.dirs[path]
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			// gone again before we looked
			return
		}
		if info.IsDir() {
			w.addTreeLocked(path, true)
			return
		}
		w.emit(ChangeEvent{Path: path, Kind: Added, Time: time.Now()})
	case event.Has(fsnotify.Write):
		if isDir {
			return
		}
		w.emit(ChangeEvent{Path: path, Kind: Modified, Time: time.Now()})
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if isDir {
			w.forgetDirLocked(path)
			return
		}
		w.emit(ChangeEvent{Path: path, Kind: Deleted, Time: time.Now()})
	}
}

// forgetDirLocked drops dir and its subdirectories from the watched set.
// fsnotify removes the kernel watches of deleted directories by itself.
func (w *Watcher) forgetDirLocked(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			_ = w.fsw.Remove(d)
			delete(w.dirs, d)
		}
	}
}

// emit queues ev without blocking the fsnotify reader. A full queue drops
// the event. Paths are reported under the configured root name.
func (w *Watcher) emit(ev ChangeEvent) {
	if w.resolved != "" {
		ev.Path = underRoot(filepath.Clean(w.root), w.resolved, ev.Path)
	}
	metrics.ChangeEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	select {
	case w.events <- Signal{Type: SignalFileChange, Event: ev, Time: ev.Time}:
		w.logger.Debug("File change detected", "path", ev.Path, "kind", ev.Kind)
	default:
		metrics.ChangeEventsDropped.Inc()
		w.logger.Warn("Event queue full, dropping change", "path", ev.Path, "kind", ev.Kind)
	}
}

// Stop releases the watch handle and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done, fsw := w.cancel, w.done, w.fsw
	w.cancel = nil
	w.fsw = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			w.logger.Warn("Error closing fsnotify watcher", "error", err)
		}
	}
	if err := waitDone(done, w.opts.StopTimeout); err != nil {
		w.logger.Warn("Watcher did not stop in time", "timeout", w.opts.StopTimeout)
		return err
	}
	w.logger.Info("Filesystem watcher stopped")
	return nil
}
