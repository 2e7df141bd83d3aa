package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"plexscan-go/apperror"
	"plexscan-go/metrics"
)

// Sweeper emits a timer signal every interval and enumerates the tree on
// demand. It cannot tell a modified file from an unchanged one, so every
// file it finds is reported.
type Sweeper struct {
	root        string
	interval    time.Duration
	stopTimeout time.Duration
	excludes    *Excluder
	logger      *slog.Logger

	events chan Signal

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper creates a sweeper rooted at root.
func NewSweeper(root string, interval, stopTimeout time.Duration, excludes *Excluder, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		root:        root,
		interval:    interval,
		stopTimeout: stopTimeout,
		excludes:    excludes,
		logger:      logger.With("component", "sweeper"),
		// one pending tick is enough; extra ticks coalesce
		events: make(chan Signal, 1),
	}
}

// Events implements Source.
func (s *Sweeper) Events() <-chan Signal {
	return s.events
}

// Start begins ticking.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return apperror.Config("scan interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Periodic sweep started", "root", s.root, "interval", s.interval)
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer close(s.events)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case s.events <- Signal{Type: SignalTimer, Time: now}:
			default:
				s.logger.Debug("Previous sweep still pending, skipping tick")
			}
		}
	}
}

// Stop implements Source.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := waitDone(done, s.stopTimeout); err != nil {
		s.logger.Warn("Sweeper did not stop in time", "timeout", s.stopTimeout)
		return err
	}
	return nil
}

// Sweep walks the tree and returns the path of every non-directory entry.
// Unreadable subtrees are skipped; a missing root is an error.
func (s *Sweeper) Sweep() ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, apperror.Transient("watch directory unavailable", err)
	}
	if !info.IsDir() {
		return nil, apperror.Transient("watch directory is not a directory", nil)
	}
	resolved, err := realRoot(s.root)
	if err != nil {
		return nil, apperror.Transient("watch directory unavailable", err)
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == resolved {
				return err
			}
			s.logger.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != resolved && s.excludes.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, underRoot(filepath.Clean(s.root), resolved, path))
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, apperror.Transient("sweep failed", err)
	}

	metrics.SweepsTotal.Inc()
	metrics.SweepFiles.Set(float64(len(files)))
	s.logger.Debug("Sweep finished", "root", s.root, "files", len(files))
	return files, nil
}
