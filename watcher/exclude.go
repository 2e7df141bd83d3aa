package watcher

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Excluder matches file and directory base names against glob patterns.
type Excluder struct {
	globs []glob.Glob
}

// NewExcluder compiles patterns. A nil Excluder matches nothing.
func NewExcluder(patterns []string) (*Excluder, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return &Excluder{globs: globs}, nil
}

// Match reports whether the base name of path matches any pattern.
func (e *Excluder) Match(path string) bool {
	if e == nil {
		return false
	}
	name := filepath.Base(path)
	for _, g := range e.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
