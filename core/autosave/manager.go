package autosave

import (
	"sync"
	"time"

	"github.com/trezcool/walimu/core"
)

// Manager hands out one Orchestrator per (user, application) editing session
// and tears them all down on shutdown. Sessions untouched for SessionTTL are
// reaped in the background so abandoned editors do not leak orchestrators.
type Manager struct {
	remote   RemoteClient
	fallback FallbackStore
	monitor  *Monitor
	logger   core.Logger
	conf     Config

	mu       sync.Mutex
	sessions map[sessionKey]*session
	closed   bool
	done     chan struct{}

	nowFunc func() time.Time // mockable
}

type sessionKey struct {
	userID        string
	applicationID string
}

type session struct {
	orch     *Orchestrator
	lastSeen time.Time
}

func NewManager(remote RemoteClient, fallback FallbackStore, monitor *Monitor, logger core.Logger, conf Config) *Manager {
	conf.setDefaults()
	m := &Manager{
		remote:   remote,
		fallback: fallback,
		monitor:  monitor,
		logger:   logger,
		conf:     conf,
		sessions: make(map[sessionKey]*session),
		done:     make(chan struct{}),
		nowFunc:  time.Now,
	}
	go m.reapIdleSessions()
	return m
}

// Session returns the orchestrator for the given user and application,
// creating it on first use and marking it live for the idle reaper.
func (m *Manager) Session(userID, applicationID string) *Orchestrator {
	key := sessionKey{userID, applicationID}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		s = &session{orch: NewOrchestrator(userID, applicationID, m.remote, m.fallback, m.monitor, m.logger, m.conf)}
		m.sessions[key] = s
	}
	s.lastSeen = m.nowFunc()
	return s.orch
}

// EndSession closes and forgets the session's orchestrator, cancelling any
// pending debounced save.
func (m *Manager) EndSession(userID, applicationID string) {
	key := sessionKey{userID, applicationID}
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		s.orch.Close()
	}
}

// ActiveSessions reports the number of live orchestrators.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the reaper and tears down all live sessions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[sessionKey]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.orch.Close()
	}
}

func (m *Manager) reapIdleSessions() {
	ticker := time.NewTicker(m.conf.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := m.nowFunc().Add(-m.conf.SessionTTL)

	m.mu.Lock()
	var evicted []*session
	for key, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			evicted = append(evicted, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.orch.Close()
	}
	if len(evicted) > 0 {
		m.logger.Debug("autosave: evicted idle sessions", map[string]interface{}{"count": len(evicted)})
	}
}
