package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"plexscan-go/apperror"
	"plexscan-go/logging"
	"plexscan-go/metrics"
	"plexscan-go/platform"
)

// waitForEvent reads signals until one matches path and kind.
func waitForEvent(t *testing.T, events <-chan Signal, path string, kind Kind) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s %s", kind, path)
			}
			if sig.Type == SignalFileChange && sig.Event.Path == path && sig.Event.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, path)
		}
	}
}

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	w := NewWatcher(root, opts, logging.Discard())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherFileLifecycle(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{})

	file := filepath.Join(root, "movie.mkv")
	if err := os.WriteFile(file, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), file, Added)

	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("more")
	_ = f.Close()
	waitForEvent(t, w.Events(), file, Modified)

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), file, Deleted)
}

func TestWatcherNewSubdirectory(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{})

	sub := filepath.Join(root, "Show", "Season 1")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// give the watcher a moment to pick up the new directory
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(sub, "S01E01.mkv")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), file, Added)
}

func TestWatcherSkipsDirectoriesAndExcludes(t *testing.T) {
	root := t.TempDir()
	excludes, err := NewExcluder([]string{"*.part"})
	if err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, root, Options{Excludes: excludes})

	if err := os.Mkdir(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "download.part"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(root, "marker.mkv")
	if err := os.WriteFile(marker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig := <-w.Events():
			switch sig.Event.Path {
			case marker:
				return
			case filepath.Join(root, "empty"), filepath.Join(root, "download.part"):
				t.Fatalf("unexpected event for %s", sig.Event.Path)
			}
		case <-deadline:
			t.Fatal("timed out waiting for marker event")
		}
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	w := NewWatcher(root, Options{}, logging.Discard())

	err := w.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to fail for a missing root")
	}
	if apperror.KindOf(err) != apperror.KindBackend {
		t.Errorf("error kind = %v; want backend", apperror.KindOf(err))
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop after failed Start = %v", err)
	}
}

func TestWatcherStopClosesEvents(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, Options{StopTimeout: time.Second}, logging.Discard())
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	select {
	case _, ok := <-w.Events():
		for ok {
			_, ok = <-w.Events()
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after Stop")
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	excludes, _ := NewExcluder([]string{".*", "*.tmp"})

	files := []string{
		"a.mkv",
		filepath.Join("Movies", "b.mkv"),
		filepath.Join("Movies", "Extras", "c.mkv"),
		"skip.tmp",
		filepath.Join(".hidden", "d.mkv"),
	}
	for _, f := range files {
		full := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewSweeper(root, time.Minute, time.Second, excludes, logging.Discard())
	got, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	sort.Strings(got)

	want := []string{
		filepath.Join(root, "Movies", "Extras", "c.mkv"),
		filepath.Join(root, "Movies", "b.mkv"),
		filepath.Join(root, "a.mkv"),
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("Sweep() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sweep()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestSweepMissingRoot(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "gone"), time.Minute, time.Second, nil, logging.Discard())
	if _, err := s.Sweep(); apperror.KindOf(err) != apperror.KindTransient {
		t.Errorf("Sweep() error = %v; want transient", err)
	}
}

func TestSweeperTicks(t *testing.T) {
	s := NewSweeper(t.TempDir(), 20*time.Millisecond, time.Second, nil, logging.Discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("second Start = %v; want ErrAlreadyRunning", err)
	}

	select {
	case sig := <-s.Events():
		if sig.Type != SignalTimer {
			t.Errorf("signal type = %v; want timer", sig.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSweeperRejectsZeroInterval(t *testing.T) {
	s := NewSweeper(t.TempDir(), 0, time.Second, nil, logging.Discard())
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected an error for zero interval")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"":         Added,
		"added":    Added,
		"Modified": Modified,
		"deleted":  Deleted,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("renamed"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestExcluderNil(t *testing.T) {
	var e *Excluder
	if e.Match("/a/b") {
		t.Error("nil excluder should match nothing")
	}
	e, err := NewExcluder([]string{"*.part"})
	if err != nil {
		t.Fatal(err)
	}
	if !e.Match("/dl/movie.mkv.part") || e.Match("/dl/movie.mkv") {
		t.Error("unexpected match result")
	}
}

// linkedTree creates target/a.mkv and target/sub/b.mkv and returns target
// and a symlink pointing at it.
func linkedTree(t *testing.T) (target, link string) {
	t.Helper()
	base := t.TempDir()
	target = filepath.Join(base, "target")
	for _, f := range []string{"a.mkv", filepath.Join("sub", "b.mkv")} {
		full := filepath.Join(target, f)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	link = filepath.Join(base, "mount")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	return target, link
}

func TestSweepSymlinkedRoot(t *testing.T) {
	_, link := linkedTree(t)

	s := NewSweeper(link, time.Minute, time.Second, nil, logging.Discard())
	got, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	sort.Strings(got)

	want := []string{filepath.Join(link, "a.mkv"), filepath.Join(link, "sub", "b.mkv")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Sweep() = %v; want %v", got, want)
	}
}

func TestWatcherSymlinkedRoot(t *testing.T) {
	_, link := linkedTree(t)
	w := startWatcher(t, link, Options{})

	file := filepath.Join(link, "sub", "c.mkv")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, w.Events(), file, Added)
}

func TestUnderRoot(t *testing.T) {
	cases := []struct{ root, resolved, path, want string }{
		{"/mnt/cloud", "/mnt/cloud", "/mnt/cloud/a.mkv", "/mnt/cloud/a.mkv"},
		{"/mnt/cloud", "/srv/drive", "/srv/drive/a/b.mkv", "/mnt/cloud/a/b.mkv"},
		{"/mnt/cloud", "/srv/drive", "/srv/drive", "/mnt/cloud"},
		{"/mnt/cloud", "/srv/drive", "/elsewhere/x.mkv", "/elsewhere/x.mkv"},
	}
	for _, c := range cases {
		root := filepath.FromSlash(c.root)
		got := underRoot(root, filepath.FromSlash(c.resolved), filepath.FromSlash(c.path))
		if got != filepath.FromSlash(c.want) {
			t.Errorf("underRoot(%q, %q, %q) = %q; want %q", c.root, c.resolved, c.path, got, c.want)
		}
	}
}

func droppedEvents(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.ChangeEventsDropped.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	w := NewWatcher(t.TempDir(), Options{QueueSize: 1}, logging.Discard())
	before := droppedEvents(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			w.emit(ChangeEvent{Path: fmt.Sprintf("/m/%d.mkv", i), Kind: Added, Time: time.Now()})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a full queue")
	}

	if got := droppedEvents(t) - before; got != 4 {
		t.Errorf("dropped = %v; want 4", got)
	}
	if sig := <-w.Events(); sig.Event.Path != "/m/0.mkv" {
		t.Errorf("queued event = %s; want the first one", sig.Event.Path)
	}
}

func TestWatcherQueueOverflowKeepsRunning(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, Options{QueueSize: 1, StopTimeout: 2 * time.Second}, logging.Discard())
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	before := droppedEvents(t)

	// nothing reads Events, so all but the first change overflow
	for i := 0; i < 10; i++ {
		if err := os.WriteFile(filepath.Join(root, fmt.Sprintf("f%d.mkv", i)), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for droppedEvents(t)-before < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("dropped = %v; want at least 5", droppedEvents(t)-before)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop with a full queue = %v", err)
	}
}

func TestSweeperStopTimesOut(t *testing.T) {
	s := NewSweeper(t.TempDir(), time.Minute, 100*time.Millisecond, nil, logging.Discard())
	// a loop that never finishes
	s.cancel = func() {}
	s.done = make(chan struct{})

	start := time.Now()
	if err := s.Stop(); err != ErrStopTimeout {
		t.Errorf("Stop = %v; want ErrStopTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %s", elapsed)
	}
}

func TestWaitDone(t *testing.T) {
	closed := make(chan struct{})
	close(closed)
	if err := waitDone(closed, time.Second); err != nil {
		t.Errorf("waitDone(closed) = %v", err)
	}
	if err := waitDone(nil, time.Second); err != nil {
		t.Errorf("waitDone(nil) = %v", err)
	}
	if err := waitDone(make(chan struct{}), 10*time.Millisecond); err != ErrStopTimeout {
		t.Errorf("waitDone(open) = %v; want ErrStopTimeout", err)
	}
}

func TestSweepDefaultExcludesKeepDotfiles(t *testing.T) {
	root := t.TempDir()
	excludes, err := NewExcluder(platform.GetPlatformConfig().DefaultExcludePatterns)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{".hidden.mkv", filepath.Join(".extras", "b.mkv"), "dl.part"} {
		full := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := NewSweeper(root, time.Minute, time.Second, excludes, logging.Discard()).Sweep()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	want := []string{filepath.Join(root, ".extras", "b.mkv"), filepath.Join(root, ".hidden.mkv")}
	sort.Strings(want)
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Sweep() = %v; want %v", got, want)
	}
}
