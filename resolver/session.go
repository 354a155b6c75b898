package resolver

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session binds one running resolver process to the options it has printed
// for one query. Options keep their discovery order and are deduplicated.
type Session struct {
	id        string
	query     string
	proc      *process
	createdAt time.Time

	mu           sync.RWMutex
	options      []string
	optionSet    map[string]struct{}
	lastActivity time.Time
	registered   bool // guarded by Manager.mu

	selecting atomic.Bool
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Options      []string  `json:"options"`
	PID          int       `json:"pid"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func newSession(query string, proc *process) *Session {
	now := time.Now()
	return &Session{
		id:           uuid.Must(uuid.NewV7()).String(),
		query:        query,
		proc:         proc,
		createdAt:    now,
		lastActivity: now,
		optionSet:    make(map[string]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Query returns the search that started the session.
func (s *Session) Query() string {
	return s.query
}

// Options returns a copy of the options discovered so far.
func (s *Session) Options() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.options)
}

// HasOption reports whether opt has been offered by this session.
func (s *Session) HasOption(opt string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.optionSet[opt]
	return ok
}

// Info returns session metadata.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		ID:           s.id,
		Query:        s.query,
		Options:      slices.Clone(s.options),
		PID:          s.proc.pid(),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// addOption records opt, reporting false for duplicates.
func (s *Session) addOption(opt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.optionSet[opt]; ok {
		return false
	}
	s.optionSet[opt] = struct{}{}
	s.options = append(s.options, opt)
	s.lastActivity = time.Now()
	return true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}
