package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// SessionTTLDefault is how long a login stays valid.
	SessionTTLDefault = 24 * time.Hour
)

var (
	ErrInvalidKey       = errors.New("invalid access key")
	ErrNotAuthenticated = errors.New("not authenticated, run: overunder auth login KEY")
	ErrNoSession        = errors.New("no session")
)

// Session is the persisted login state. Timestamp is in unix milliseconds.
type Session struct {
	Authenticated bool  `json:"authenticated" yaml:"authenticated"`
	Timestamp     int64 `json:"timestamp" yaml:"timestamp"`
}

// Expired reports whether the session is older than ttl at now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(s.Timestamp)) > ttl
}

// ExpiresAt returns when the session stops being valid.
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return time.UnixMilli(s.Timestamp).Add(ttl)
}

// SessionStore persists the session. Load returns ErrNoSession when
// nothing is stored.
type SessionStore interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// Sessions combines a Gate with stored login state.
type Sessions struct {
	gate  Gate
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions creates a session manager. Zero ttl means SessionTTLDefault.
func NewSessions(g Gate, store SessionStore, ttl time.Duration, now func() time.Time) *Sessions {
	if ttl <= 0 {
		ttl = SessionTTLDefault
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{gate: g, store: store, ttl: ttl, now: now}
}

// TTL is the session lifetime.
func (m *Sessions) TTL() time.Duration {
	return m.ttl
}

// Login validates key and stores a fresh session.
func (m *Sessions) Login(key string) (*Session, error) {
	if m.gate == nil || !m.gate.Validate(key) {
		return nil, ErrInvalidKey
	}

	s := &Session{Authenticated: true, Timestamp: m.now().UnixMilli()}
	if err := m.store.Save(s); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	slog.Debug("session started", "expires", s.ExpiresAt(m.ttl))
	return s, nil
}

// Check returns the current session when it is authenticated and not
// expired. Stale sessions are cleared.
func (m *Sessions) Check() (*Session, bool) {
	s, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			slog.Debug("loading session failed", "error", err)
		}
		return nil, false
	}

	if s.Authenticated && !s.Expired(m.now(), m.ttl) {
		return s, true
	}

	if err := m.store.Clear(); err != nil {
		slog.Debug("clearing stale session failed", "error", err)
	}
	return nil, false
}

// Require returns ErrNotAuthenticated without a valid session.
func (m *Sessions) Require() error {
	if _, ok := m.Check(); !ok {
		return ErrNotAuthenticated
	}
	return nil
}

// Logout removes the stored session.
func (m *Sessions) Logout() error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
