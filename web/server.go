package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plexscan-go/controller"
	"plexscan-go/dispatch"
	"plexscan-go/plex"
	"plexscan-go/state"
	"plexscan-go/watcher"
)

// Scanner is the part of the controller the API drives.
type Scanner interface {
	Status() controller.Status
	ScanNow(ctx context.Context) dispatch.Result
	TriggerPaths(ctx context.Context, paths []string, kind watcher.Kind) dispatch.Result
}

// SectionLister lists library sections of a Plex server.
type SectionLister interface {
	Sections(ctx context.Context, baseURL, token string) ([]plex.Section, error)
}

// Server wraps the HTTP server.
type Server struct {
	state    *state.AppState
	scanner  Scanner
	sections SectionLister
	logger   *slog.Logger
	http     *http.Server
}

// NewServer creates a new web server.
func NewServer(st *state.AppState, scanner Scanner, sections SectionLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		state:    st,
		scanner:  scanner,
		sections: sections,
		logger:   logger.With("component", "web"),
	}
}

// Start runs the web server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.state.GetConfig().Web.Listen
	s.logger.Info("Starting web server", "address", addr)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info("Web server context canceled, shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.statusHandler)
		r.Get("/servers", s.serversHandler)
		r.Get("/sections", s.sectionsHandler)
		r.Post("/scan", s.scanHandler)
	})

	return r
}
