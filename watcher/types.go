// Package watcher detects file changes under a directory tree. Two sources
// share the Source interface: Watcher delivers fsnotify events as they
// happen, Sweeper ticks on an interval and enumerates the whole tree.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("change source is already running")

	// ErrStopTimeout is returned when a background goroutine did not exit
	// within the stop timeout.
	ErrStopTimeout = errors.New("timed out waiting for change source to stop")
)

// Kind is the kind of a file change.
type Kind int

const (
	Added Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "added", "modified" or "deleted". An empty string is Added.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "added", "created":
		return Added, nil
	case "modified":
		return Modified, nil
	case "deleted", "removed":
		return Deleted, nil
	default:
		return Added, fmt.Errorf("unknown change kind %q", s)
	}
}

// ChangeEvent is a single file change in the local namespace.
type ChangeEvent struct {
	Path string
	Kind Kind
	Time time.Time
}

// SignalType distinguishes timer ticks from file change notifications.
type SignalType int

const (
	SignalTimer SignalType = iota
	SignalFileChange
)

func (t SignalType) String() string {
	if t == SignalTimer {
		return "timer"
	}
	return "file_change"
}

// Signal is what a Source emits. Event is only set for SignalFileChange.
type Signal struct {
	Type  SignalType
	Event ChangeEvent
	Time  time.Time
}

// Source produces change signals until stopped.
type Source interface {
	// Start installs the source and begins emitting on Events. It must not
	// block.
	Start(ctx context.Context) error
	// Events returns the signal channel. It is closed once the source's
	// background goroutine has exited.
	Events() <-chan Signal
	// Stop halts the source and waits, bounded, for it to exit. Safe to call
	// when Start failed or was never called.
	Stop() error
}

// waitDone waits for done to close or for timeout to pass.
func waitDone(done <-chan struct{}, timeout time.Duration) error {
	if done == nil {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// realRoot resolves root through symlinks so a mounted or linked watch
// directory is walked instead of being reported as a single entry.
func realRoot(root string) (string, error) {
	return filepath.EvalSymlinks(root)
}

// underRoot rewrites a path found below resolved so it is reported under the
// configured root name. Path mappings are written against that name.
func underRoot(root, resolved, path string) string {
	if resolved == root {
		return path
	}
	rel, err := filepath.Rel(resolved, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.Join(root, rel)
}
