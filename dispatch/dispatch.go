// Package dispatch turns sets of changed local paths into Plex partial scan
// requests.
package dispatch

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"plexscan-go/apperror"
	"plexscan-go/metrics"
	"plexscan-go/pathmap"
	"plexscan-go/state"
	"plexscan-go/watcher"
)

// Result is the outcome of a trigger. Failures never panic or return
// errors across the package boundary; they come back as a Result.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	Paths     int       `json:"paths"`
	Time      time.Time `json:"time"`

	// Err is set on failure.
	Err *apperror.AppError `json:"-"`
}

func success(msg string) Result {
	return Result{Success: true, Message: msg, Time: time.Now()}
}

func failure(err *apperror.AppError) Result {
	return Result{Success: false, Message: err.Error(), Err: err, Time: time.Now()}
}

// ScanRequest is a deduplicated set of remote paths for one refresh call.
type ScanRequest struct {
	ID    string
	Paths []string
	Kind  watcher.Kind
}

// Refresher issues the partial scan call. *plex.Client implements it.
type Refresher interface {
	RefreshSection(ctx context.Context, baseURL, token, sectionID string, paths []string) error
}

// Dispatcher validates, filters, deduplicates and maps changed paths and
// asks Plex to refresh them. It reads server and section settings from the
// shared state on every call.
type Dispatcher struct {
	state  *state.AppState
	mapper *pathmap.Mapper
	client Refresher
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(st *state.AppState, mapper *pathmap.Mapper, client Refresher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		state:  st,
		mapper: mapper,
		client: client,
		logger: logger.With("component", "dispatch"),
	}
}

// HandleFileChange dispatches a single changed path. An empty path, or a
// missing path for anything but a deletion, is rejected.
func (d *Dispatcher) HandleFileChange(ctx context.Context, path string, kind watcher.Kind) Result {
	if path == "" || (kind != watcher.Deleted && !exists(path)) {
		metrics.ScanRequestsTotal.WithLabelValues("failure").Inc()
		return failure(apperror.Invalid("invalid file path: " + path))
	}
	return d.Trigger(ctx, []string{path}, kind)
}

// Trigger requests a scan of localPaths. Paths that no longer exist are
// dropped unless kind is Deleted; an empty batch is a successful no-op.
func (d *Dispatcher) Trigger(ctx context.Context, localPaths []string, kind watcher.Kind) Result {
	res := d.trigger(ctx, localPaths, kind)
	switch {
	case !res.Success:
		metrics.ScanRequestsTotal.WithLabelValues("failure").Inc()
	case res.Paths == 0:
		metrics.ScanRequestsTotal.WithLabelValues("skipped").Inc()
	default:
		metrics.ScanRequestsTotal.WithLabelValues("success").Inc()
	}
	return res
}

func (d *Dispatcher) trigger(ctx context.Context, localPaths []string, kind watcher.Kind) Result {
	cfg := d.state.GetConfig()
	serverID, sectionID := cfg.Plex.ServerID, cfg.Plex.SectionID
	if serverID == "" || sectionID == "" {
		return failure(apperror.Config("plex server_id or section_id not configured"))
	}

	valid := make(map[string]struct{}, len(localPaths))
	for _, p := range localPaths {
		if p == "" {
			continue
		}
		if kind == watcher.Deleted || exists(p) {
			valid[p] = struct{}{}
		}
	}
	if len(valid) == 0 {
		return success("no paths to scan")
	}

	server, ok := d.state.FindServer(serverID)
	if !ok {
		return failure(apperror.Config("plex server not found: " + serverID))
	}

	req := d.buildRequest(valid, kind)
	log := d.logger.With("request_id", req.ID, "server", serverID, "section", sectionID, "kind", kind)
	log.Info("Triggering Plex scan", "paths", len(req.Paths), "sample", sample(req.Paths, 3))

	start := time.Now()
	err := d.client.RefreshSection(ctx, server.URL, server.Token, sectionID, req.Paths)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		appErr := apperror.Transient("plex scan request failed", err)
		log.Error("Plex scan request failed", "error", err)
		res := failure(appErr)
		res.RequestID = req.ID
		res.Paths = len(req.Paths)
		return res
	}

	metrics.ScanPathsTotal.Add(float64(len(req.Paths)))
	log.Info("Plex scan request succeeded")
	res := success("plex scan triggered")
	res.RequestID = req.ID
	res.Paths = len(req.Paths)
	return res
}

// buildRequest maps each local path and collapses the result to a sorted set.
func (d *Dispatcher) buildRequest(local map[string]struct{}, kind watcher.Kind) ScanRequest {
	remote := make(map[string]struct{}, len(local))
	for p := range local {
		if mapped := d.mapper.Map(p); mapped != "" {
			remote[mapped] = struct{}{}
		}
	}
	paths := make([]string, 0, len(remote))
	for p := range remote {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return ScanRequest{ID: uuid.NewString(), Paths: paths, Kind: kind}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sample(paths []string, n int) string {
	if len(paths) <= n {
		return strings.Join(paths, ", ")
	}
	return strings.Join(paths[:n], ", ") + ", ..."
}
