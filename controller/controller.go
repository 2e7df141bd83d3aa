// Package controller wires change detection, path mapping and scan dispatch
// together and owns their lifecycle.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"plexscan-go/apperror"
	"plexscan-go/database"
	"plexscan-go/dispatch"
	"plexscan-go/metrics"
	"plexscan-go/pathmap"
	"plexscan-go/plex"
	"plexscan-go/state"
	"plexscan-go/watcher"
)

// Status is a snapshot of the controller for the status API.
type Status struct {
	WatchDirectory string           `json:"watch_directory"`
	Mode           string           `json:"mode"` // "watch" or "sweep"
	Events         []string         `json:"events"`
	ScanInterval   string           `json:"scan_interval"`
	Servers        int              `json:"servers"`
	Mappings       int              `json:"mappings"`
	Triggers       uint64           `json:"triggers"`
	Failures       uint64           `json:"failures"`
	LastSignal     time.Time        `json:"last_signal,omitempty"`
	LastResult     *dispatch.Result `json:"last_result,omitempty"`
}

// Controller owns the change sources and forwards their signals to the
// dispatcher. Timer ticks and file changes are consumed on separate
// goroutines, so a long sweep does not hold up live events.
type Controller struct {
	state     *state.AppState
	directory database.Directory
	base      *slog.Logger
	logger    *slog.Logger

	mapper     *pathmap.Mapper
	dispatcher *dispatch.Dispatcher
	sweeper    *watcher.Sweeper
	watch      *watcher.Watcher

	watchActive atomic.Bool
	triggers    atomic.Uint64
	failures    atomic.Uint64

	mu         sync.Mutex
	lastSignal time.Time
	lastResult *dispatch.Result
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a controller. Nothing runs until Init.
func New(st *state.AppState, directory database.Directory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:     st,
		directory: directory,
		base:      logger,
		logger:    logger.With("component", "controller"),
	}
}

// Init loads the known servers, builds the mapper and dispatcher, and
// starts the change sources. A watch backend that cannot be installed is
// logged and leaves the controller in sweep-only mode.
func (c *Controller) Init(ctx context.Context) error {
	cfg := c.state.GetConfig()

	c.loadServers(ctx)

	c.mapper = pathmap.FromConfig(cfg.Plex)
	client := plex.NewClient(cfg.HTTPTimeoutDuration(), c.base)
	c.dispatcher = dispatch.New(c.state, c.mapper, client, c.base)

	excludes, err := watcher.NewExcluder(cfg.Watch.ExcludePatterns)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.sweeper = watcher.NewSweeper(cfg.Watch.Directory, cfg.ScanIntervalDuration(), cfg.StopTimeoutDuration(), excludes, c.base)
	if err := c.sweeper.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start periodic sweep: %w", err)
	}

	watch := watcher.NewWatcher(cfg.Watch.Directory, watcher.Options{
		QueueSize:   cfg.Watch.WatchQueueSize,
		StopTimeout: cfg.StopTimeoutDuration(),
		Excludes:    excludes,
	}, c.base)
	if err := watch.Start(runCtx); err != nil {
		c.logger.Warn("File watching unavailable, using periodic sweep only", "path", cfg.Watch.Directory, "error", err)
		metrics.WatchActive.Set(0)
	} else {
		c.watch = watch
		c.watchActive.Store(true)
		metrics.WatchActive.Set(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.consume(runCtx, c.sweeper.Events())
	}()
	if c.watch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.consume(runCtx, c.watch.Events())
			if runCtx.Err() == nil {
				c.logger.Warn("File watch stopped unexpectedly, continuing with periodic sweep only")
				c.watchActive.Store(false)
				metrics.WatchActive.Set(0)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("Plex scanner initialized",
		"watch_directory", cfg.Watch.Directory,
		"mode", c.mode(),
		"interval", cfg.ScanIntervalDuration(),
		"servers", len(c.state.Servers()),
		"mappings", len(c.mapper.Mappings()))
	return nil
}

func (c *Controller) loadServers(ctx context.Context) {
	if c.directory == nil {
		c.state.SetServers(nil)
		return
	}
	servers, err := c.directory.ListServers(ctx)
	if err != nil {
		c.logger.Error("Failed to load Plex servers", "error", err)
		servers = nil
	}
	c.state.SetServers(servers)
	c.logger.Info("Loaded Plex servers", "count", len(servers))
}

func (c *Controller) consume(ctx context.Context, signals <-chan watcher.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			c.HandleEvent(ctx, sig)
		}
	}
}

// HandleEvent processes one signal. A timer tick sweeps the whole tree and
// sends every file as one batch; a file change is sent on its own right away.
func (c *Controller) HandleEvent(ctx context.Context, sig watcher.Signal) dispatch.Result {
	if res, ok := c.checkInit(); !ok {
		return res
	}

	var res dispatch.Result
	switch sig.Type {
	case watcher.SignalTimer:
		res = c.ScanNow(ctx)
	case watcher.SignalFileChange:
		c.logger.Info("File change detected", "path", sig.Event.Path, "kind", sig.Event.Kind)
		res = c.record(c.dispatcher.HandleFileChange(ctx, sig.Event.Path, sig.Event.Kind))
	default:
		res = dispatch.Result{Success: true, Message: "event ignored", Time: time.Now()}
	}

	c.mu.Lock()
	c.lastSignal = sig.Time
	c.mu.Unlock()
	return res
}

// ScanNow sweeps the watch directory and triggers a scan of everything found.
func (c *Controller) ScanNow(ctx context.Context) dispatch.Result {
	if res, ok := c.checkInit(); !ok {
		return res
	}
	files, err := c.sweeper.Sweep()
	if err != nil {
		return c.record(dispatch.Result{
			Success: false,
			Message: err.Error(),
			Time:    time.Now(),
			Err:     apperror.Transient("sweep failed", err),
		})
	}
	if len(files) == 0 {
		return c.record(dispatch.Result{Success: true, Message: "no files found", Time: time.Now()})
	}

	c.logger.Info("Periodic sweep found files, triggering Plex scan", "files", len(files))
	return c.record(c.dispatcher.Trigger(ctx, files, watcher.Added))
}

// TriggerPaths dispatches an explicit set of local paths.
func (c *Controller) TriggerPaths(ctx context.Context, paths []string, kind watcher.Kind) dispatch.Result {
	if res, ok := c.checkInit(); !ok {
		return res
	}
	return c.record(c.dispatcher.Trigger(ctx, paths, kind))
}

// checkInit reports a failed Result when Init has not completed.
func (c *Controller) checkInit() (dispatch.Result, bool) {
	if c.dispatcher != nil && c.sweeper != nil {
		return dispatch.Result{}, true
	}
	err := apperror.Config("controller not initialized")
	return dispatch.Result{Success: false, Message: err.Error(), Err: err, Time: time.Now()}, false
}

func (c *Controller) record(res dispatch.Result) dispatch.Result {
	c.triggers.Add(1)
	if !res.Success {
		c.failures.Add(1)
		c.logger.Warn("Scan trigger failed", "message", res.Message)
	}
	c.mu.Lock()
	c.lastResult = &res
	c.mu.Unlock()
	return res
}

// Events lists the event classes the controller currently delivers. The
// file change class is only present while the watch backend is active.
func (c *Controller) Events() []watcher.SignalType {
	events := []watcher.SignalType{watcher.SignalTimer}
	if c.watchActive.Load() {
		events = append(events, watcher.SignalFileChange)
	}
	return events
}

func (c *Controller) mode() string {
	if c.watchActive.Load() {
		return "watch"
	}
	return "sweep"
}

// Status returns a snapshot for the status API.
func (c *Controller) Status() Status {
	cfg := c.state.GetConfig()
	events := c.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.String()
	}

	st := Status{
		WatchDirectory: cfg.Watch.Directory,
		Mode:           c.mode(),
		Events:         names,
		ScanInterval:   cfg.ScanIntervalDuration().String(),
		Servers:        len(c.state.Servers()),
		Triggers:       c.triggers.Load(),
		Failures:       c.failures.Load(),
	}
	if c.mapper != nil {
		st.Mappings = len(c.mapper.Mappings())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st.LastSignal = c.lastSignal
	if c.lastResult != nil {
		res := *c.lastResult
		st.LastResult = &res
	}
	return st
}

// Stop halts the sources and waits for the consumers to exit, bounded by
// the configured stop timeout. It is safe to call more than once and
// before Init.
func (c *Controller) Stop() error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel, done := c.cancel, c.done
		c.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()

		if c.watch != nil {
			if err := c.watch.Stop(); err != nil {
				c.logger.Warn("Error stopping file watcher", "error", err)
				stopErr = err
			}
			c.watchActive.Store(false)
			metrics.WatchActive.Set(0)
		}
		if err := c.sweeper.Stop(); err != nil {
			c.logger.Warn("Error stopping periodic sweep", "error", err)
			stopErr = err
		}

		timeout := c.state.GetConfig().StopTimeoutDuration()
		select {
		case <-done:
		case <-time.After(timeout):
			c.logger.Warn("Timed out waiting for event handlers to finish", "timeout", timeout)
			stopErr = watcher.ErrStopTimeout
		}
		c.logger.Info("Plex scanner stopped")
	})
	return stopErr
}
