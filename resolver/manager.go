package resolver

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// Manager is the registry of live resolver sessions.
//
// Every method is safe for concurrent use. Appending an option and looking a
// session up by option are serialized on the same lock, so a lookup never
// observes a half-recorded option.
type Manager struct {
	config config

	mu       sync.RWMutex
	sessions map[string]*Session
	byOption map[string][]*Session // option -> sessions offering it, oldest first
	closed   bool

	closeOnce sync.Once
	stopClean chan struct{}
}

// NewManager creates a new session manager.
func NewManager(opts ...Option) *Manager {
	return newManager(newConfig(opts))
}

func newManager(cfg config) *Manager {
	m := &Manager{
		config:    cfg,
		sessions:  make(map[string]*Session),
		byOption:  make(map[string][]*Session),
		stopClean: make(chan struct{}),
	}

	// Start cleanup goroutine if TTL is configured
	if cfg.sessionTTL > 0 && cfg.cleanupInterval > 0 {
		go m.cleanupLoop()
	}

	return m
}

// Insert registers a session and starts watching its process.
func (m *Manager) Insert(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.config.maxSessions > 0 && len(m.sessions) >= m.config.maxSessions {
		return fmt.Errorf("%w (%d)", ErrMaxSessions, m.config.maxSessions)
	}
	if s.proc.hasExited() {
		return fmt.Errorf("%w: process already exited", ErrExitWithoutSignal)
	}

	m.sessions[s.id] = s
	s.registered = true
	for _, opt := range s.Options() {
		m.byOption[opt] = append(m.byOption[opt], s)
	}

	go m.watchSession(s)

	return nil
}

// appendOption records a newly parsed option and indexes it if the session
// is registered. It reports false for duplicates.
func (m *Manager) appendOption(s *Session, opt string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.addOption(opt) {
		return false
	}
	if s.registered {
		m.byOption[opt] = append(m.byOption[opt], s)
	}
	return true
}

// watchSession removes a session from the registry when its process exits.
func (m *Manager) watchSession(s *Session) {
	<-s.proc.done
	if m.Remove(s.id) {
		m.config.logger.Debug("session ended with its resolver",
			slog.String("session_id", s.id),
			slog.String("query", s.query))
	}
}

// FindByOption returns the oldest live session offering opt.
func (m *Manager) FindByOption(opt string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := m.byOption[opt]
	if len(owners) == 0 {
		return nil, false
	}
	return owners[0], true
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the registry without touching its process.
// It reports whether the session was present.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) bool {
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(m.sessions, id)
	s.registered = false

	for _, opt := range s.Options() {
		owners := slices.DeleteFunc(m.byOption[opt], func(o *Session) bool { return o == s })
		if len(owners) == 0 {
			delete(m.byOption, opt)
		} else {
			m.byOption[opt] = owners
		}
	}
	return true
}

// ClearSessions terminates every session's process and empties the
// registry. The manager stays usable. It returns the number of sessions
// cleared.
func (m *Manager) ClearSessions() int {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.registered = false
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.byOption = make(map[string][]*Session)
	m.mu.Unlock()

	var wg conc.WaitGroup
	for _, s := range sessions {
		wg.Go(func() {
			m.stopProcess(s.proc)
		})
	}
	wg.Wait()

	if len(sessions) > 0 {
		m.config.logger.Debug("cleared resolver sessions", slog.Int("count", len(sessions)))
	}
	return len(sessions)
}

// stopProcess terminates p and waits briefly for it to go away, forcing it
// if it ignores SIGTERM.
func (m *Manager) stopProcess(p *process) {
	p.terminate()
	if m.config.killGrace > 0 && p.waitExit(m.config.killGrace) {
		return
	}
	p.kill()
	if !p.waitExit(time.Second) {
		m.config.logger.Warn("resolver did not exit after kill", slog.Int("pid", p.pid()))
	}
}

// Close clears all sessions and refuses new ones.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopClean)
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
	})
	m.ClearSessions()
	return nil
}

// List returns all live session IDs, oldest first.
func (m *Manager) List() []string {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return a.createdAt.Compare(b.createdAt)
	})
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.id
	}
	return ids
}

// Options returns the options offered so far by the session with the given
// ID.
func (m *Manager) Options(id string) ([]string, bool) {
	s, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return s.Options(), true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info returns information about a session.
func (m *Manager) Info(id string) (*SessionInfo, bool) {
	s, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	info := s.Info()
	return &info, true
}

// cleanupLoop periodically removes expired sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopClean:
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

// cleanupExpired closes sessions that have been idle too long.
func (m *Manager) cleanupExpired() {
	cutoff := time.Now().Add(-m.config.sessionTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.selecting.Load() || !s.idleSince().Before(cutoff) {
			continue
		}
		m.removeLocked(id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.config.logger.Debug("expiring idle session",
			slog.String("session_id", s.id),
			slog.String("query", s.query))
		s.proc.terminate()
	}
}
