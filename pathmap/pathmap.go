// Package pathmap rewrites local filesystem paths into the path namespace
// a Plex server sees for the same files.
package pathmap

import (
	"log/slog"
	"strings"

	"plexscan-go/config"
)

// Mapping rewrites paths starting with Local so that they start with Remote.
type Mapping struct {
	Local  string
	Remote string
}

// Mapper applies an ordered list of mappings. The first matching mapping
// wins. A Mapper is immutable and safe for concurrent use.
type Mapper struct {
	mappings     []Mapping
	segmentAware bool
}

// New builds a Mapper. Mappings with an empty side are skipped.
//
// By default a local prefix matches as a plain string prefix, so "/data"
// also matches "/database/x". With segmentAware set, the prefix must be
// followed by a separator or end the path.
func New(mappings []Mapping, segmentAware bool) *Mapper {
	kept := make([]Mapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Local == "" || m.Remote == "" {
			slog.Warn("Skipping incomplete path mapping", "local", m.Local, "remote", m.Remote)
			continue
		}
		kept = append(kept, m)
	}
	return &Mapper{mappings: kept, segmentAware: segmentAware}
}

// FromConfig builds a Mapper from the plex section of the config.
func FromConfig(cfg config.PlexConfig) *Mapper {
	mappings := make([]Mapping, 0, len(cfg.PathMappings))
	for _, m := range cfg.PathMappings {
		mappings = append(mappings, Mapping{Local: m.LocalPath, Remote: m.PlexPath})
	}
	return New(mappings, cfg.MatchPathSegments)
}

// Map returns the remote path for local. Unmatched paths are returned as-is.
func (m *Mapper) Map(local string) string {
	for _, mapping := range m.mappings {
		if m.matches(local, mapping.Local) {
			return mapping.Remote + local[len(mapping.Local):]
		}
	}
	return local
}

// Mappings returns a copy of the active mappings in match order.
func (m *Mapper) Mappings() []Mapping {
	out := make([]Mapping, len(m.mappings))
	copy(out, m.mappings)
	return out
}

func (m *Mapper) matches(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if !m.segmentAware || len(path) == len(prefix) {
		return true
	}
	if isSeparator(prefix[len(prefix)-1]) {
		return true
	}
	return isSeparator(path[len(prefix)])
}

func isSeparator(c byte) bool {
	return c == '/' || c == '\\'
}
