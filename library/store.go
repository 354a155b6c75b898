// Package library reads the local component library: the directory that
// holds components already imported or added by hand.
//
// Components are plain files carrying the component extension (".tsx" by
// default); the component name is the file name without it. The package is
// read-only and never validates file contents.
package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// DefaultExtension is the component file extension.
const DefaultExtension = ".tsx"

// EnvLibraryDir overrides the default library location.
const EnvLibraryDir = "VHL_LIBRARY_DIR"

// Component is one file in the library.
type Component struct {
	Name string `json:"name"`
	File string `json:"file"`
	Path string `json:"path"`
}

// Store lists and searches the library directory.
type Store struct {
	dir       string
	extension string
	ignore    []glob.Glob
	logger    *slog.Logger

	mu       sync.RWMutex
	cache    []Component
	cached   bool
	gen      uint64 // bumped on every invalidation
	watching bool
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	dir       string
	extension string
	ignore    []string
	logger    *slog.Logger
}

// WithDir sets the library directory. Default: DefaultDir().
func WithDir(dir string) Option {
	return func(c *storeConfig) { c.dir = dir }
}

// WithExtension sets the component file extension. Default: ".tsx".
func WithExtension(ext string) Option {
	return func(c *storeConfig) { c.extension = ext }
}

// WithIgnore skips files whose names match any of the glob patterns,
// e.g. "*.test.tsx" or ".*".
func WithIgnore(patterns ...string) Option {
	return func(c *storeConfig) { c.ignore = append(c.ignore, patterns...) }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *storeConfig) { c.logger = l }
}

// DefaultDir returns $VHL_LIBRARY_DIR, or "lib" under the current directory.
func DefaultDir() string {
	if dir := os.Getenv(EnvLibraryDir); dir != "" {
		return dir
	}
	if abs, err := filepath.Abs("lib"); err == nil {
		return abs
	}
	return "lib"
}

// NewStore creates a library store. Invalid ignore patterns are logged and
// skipped.
func NewStore(opts ...Option) *Store {
	cfg := storeConfig{extension: DefaultExtension}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dir == "" {
		cfg.dir = DefaultDir()
	}
	if cfg.extension == "" {
		cfg.extension = DefaultExtension
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &Store{
		dir:       cfg.dir,
		extension: cfg.extension,
		logger:    cfg.logger,
	}
	for _, pattern := range cfg.ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			s.logger.Warn("skipping invalid library ignore pattern",
				slog.String("pattern", pattern),
				slog.Any("error", err))
			continue
		}
		s.ignore = append(s.ignore, g)
	}
	return s
}

// Dir returns the library directory.
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the component file extension.
func (s *Store) Extension() string {
	return s.extension
}

// List returns the library's components sorted by name. While Watch is
// running the listing is served from a cache refreshed on directory changes.
func (s *Store) List() ([]Component, error) {
	s.mu.RLock()
	if s.watching && s.cached {
		out := make([]Component, len(s.cache))
		copy(out, s.cache)
		s.mu.RUnlock()
		return out, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	comps, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.watching && s.gen == gen {
		s.cache = comps
		s.cached = true
	}
	s.mu.Unlock()

	out := make([]Component, len(comps))
	copy(out, comps)
	return out, nil
}

// Find returns the first component, in name order, whose file name contains
// query case-insensitively.
func (s *Store) Find(query string) (Component, bool, error) {
	comps, err := s.List()
	if err != nil {
		return Component{}, false, err
	}
	q := strings.ToLower(query)
	for _, c := range comps {
		if strings.Contains(strings.ToLower(c.File), q) {
			return c, true, nil
		}
	}
	return Component{}, false, nil
}

// scan reads the directory.
func (s *Store) scan() ([]Component, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	comps := make([]Component, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, s.extension) || s.ignored(name) {
			continue
		}
		comps = append(comps, Component{
			Name: strings.TrimSuffix(name, s.extension),
			File: name,
			Path: filepath.Join(s.dir, name),
		})
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
	return comps, nil
}

func (s *Store) ignored(name string) bool {
	for _, g := range s.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cached = false
	s.cache = nil
	s.gen++
	s.mu.Unlock()
}
