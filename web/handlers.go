package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"plexscan-go/apperror"
	"plexscan-go/database"
	"plexscan-go/dispatch"
	"plexscan-go/watcher"
)

type scanRequest struct {
	Paths []string `json:"paths"`
	Kind  string   `json:"kind"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apperror.AppError) {
	writeJSON(w, err.StatusCode(), errorResponse{Error: err.Error()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Status())
}

func (s *Server) serversHandler(w http.ResponseWriter, r *http.Request) {
	servers := s.state.Servers()
	if servers == nil {
		servers = []database.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

// sectionsHandler lists the sections of ?server_id=, or of the configured
// server when omitted.
func (s *Server) sectionsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("server_id")
	if id == "" {
		id = s.state.GetConfig().Plex.ServerID
	}
	if id == "" {
		writeError(w, apperror.Invalid("server_id is required"))
		return
	}
	server, ok := s.state.FindServer(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "plex server not found: " + id})
		return
	}

	sections, err := s.sections.Sections(r.Context(), server.URL, server.Token)
	if err != nil {
		s.logger.Error("Failed to list Plex sections", "server", id, "error", err)
		writeError(w, apperror.Transient("failed to list sections", err))
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// scanHandler triggers a scan. An empty body or empty path list sweeps the
// whole watch directory.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperror.Invalid("invalid request body: "+err.Error()))
		return
	}

	kind, err := watcher.ParseKind(req.Kind)
	if err != nil {
		writeError(w, apperror.Invalid(err.Error()))
		return
	}

	var res dispatch.Result
	if len(req.Paths) == 0 {
		res = s.scanner.ScanNow(r.Context())
	} else {
		res = s.scanner.TriggerPaths(r.Context(), req.Paths, kind)
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
		if res.Err != nil {
			status = res.Err.StatusCode()
		}
	}
	writeJSON(w, status, res)
}
