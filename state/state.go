package state

import (
	"sync"

	"plexscan-go/config"
	"plexscan-go/database"
)

// AppState holds the configuration and the known Plex servers. Components
// keep a pointer to it rather than copies, so a config swap is seen by
// everyone on their next call.
type AppState struct {
	Config  *config.AppConfig
	servers []database.Server
	mu      sync.RWMutex
}

// New creates a new AppState.
func New(cfg *config.AppConfig) *AppState {
	return &AppState{Config: cfg}
}

// GetConfig returns the current configuration safely.
func (s *AppState) GetConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Config
}

// SetConfig updates the configuration safely.
func (s *AppState) SetConfig(cfg *config.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = cfg
}

// Servers returns the known servers. The slice must not be modified.
func (s *AppState) Servers() []database.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers
}

// SetServers replaces the known servers.
func (s *AppState) SetServers(servers []database.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = servers
}

// FindServer returns the known server with the given id.
func (s *AppState) FindServer(id string) (database.Server, bool) {
	for _, srv := range s.Servers() {
		if srv.ID == id {
			return srv, true
		}
	}
	return database.Server{}, false
}
