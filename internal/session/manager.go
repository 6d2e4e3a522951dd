// Package session keeps wizard sessions in process memory.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/peaklee4u/inquirytutor/internal/wizard"
)

// ErrRateLimited is returned when a session sends chat messages too quickly.
var ErrRateLimited = errors.New("too many messages, wait a moment and try again")

// Session is one browser's wizard. Callers must hold the lock (via With)
// while touching State.
type Session struct {
	ID string

	mu      sync.Mutex
	state   *wizard.State
	limiter *rate.Limiter

	// lastSeen is unix nanos. It lives outside mu so the sweeper never
	// waits on a session that is mid chat turn.
	lastSeen atomic.Int64
}

// With runs fn with exclusive access to the wizard state.
func (s *Session) With(fn func(st *wizard.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// AllowChat consumes one chat token from the session's rate limiter.
func (s *Session) AllowChat() bool {
	return s.limiter.Allow()
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Options tunes a Manager.
type Options struct {
	// ChatPerMinute caps chat-completion calls per session.
	ChatPerMinute int
	Now           func() time.Time
}

// Manager maps session IDs to sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	chatRate rate.Limit
	burst    int
	now      func() time.Time
}

// NewManager creates a new session manager.
func NewManager(opts Options) *Manager {
	perMinute := opts.ChatPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Session),
		chatRate: rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      now,
	}
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s := m.sessions[id]
	m.mu.RUnlock()
	if s != nil {
		s.touch(m.now())
	}
	return s
}

// Create starts a fresh session with a random ID.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:      uuid.NewString(),
		state:   wizard.New(),
		limiter: rate.NewLimiter(m.chatRate, m.burst),
	}
	s.touch(m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Debug("Session created", "session_id", s.ID)
	return s
}

// GetOrCreate returns the session for id, creating one when id is unknown.
// The boolean reports whether a new session was created.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s := m.Get(id); s != nil {
			return s, false
		}
	}
	return m.Create(), true
}

// Delete drops a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns how many went.
func (m *Manager) Sweep(ttl time.Duration) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs a background goroutine that periodically drops idle sessions.
func StartSweeper(ctx context.Context, m *Manager, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if removed := m.Sweep(ttl); removed > 0 {
					slog.Info("Session sweeper removed idle sessions", "count", removed, "remaining", m.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
