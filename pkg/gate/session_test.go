package gate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type memSessionStore struct {
	session *Session
}

func (m *memSessionStore) Load() (*Session, error) {
	if m.session == nil {
		return nil, ErrNoSession
	}
	return m.session, nil
}

func (m *memSessionStore) Save(s *Session) error {
	m.session = s
	return nil
}

func (m *memSessionStore) Clear() error {
	m.session = nil
	return nil
}

func TestSessions_LoginAndExpiry(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := &memSessionStore{}
	m := NewSessions(NewKeyGate(nil, clock), store, 0, clock)
	assert.Equal(t, SessionTTLDefault, m.TTL())

	_, ok := m.Check()
	assert.False(t, ok)
	assert.ErrorIs(t, m.Require(), ErrNotAuthenticated)

	_, err := m.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Nil(t, store.session)

	s, err := m.Login("tthien_access_9182838")
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.Equal(t, now.UnixMilli(), s.Timestamp)
	assert.NoError(t, m.Require())

	now = now.Add(SessionTTLDefault)
	_, ok = m.Check()
	assert.True(t, ok, "session is valid up to the full ttl")

	now = now.Add(time.Millisecond)
	_, ok = m.Check()
	assert.False(t, ok)
	assert.Nil(t, store.session, "expired session is cleared")
}

func TestSessions_Unauthenticated(t *testing.T) {
	store := &memSessionStore{session: &Session{Authenticated: false, Timestamp: time.Now().UnixMilli()}}
	m := NewSessions(NewKeyGate(nil, nil), store, time.Hour, nil)

	_, ok := m.Check()
	assert.False(t, ok)
	assert.Nil(t, store.session)
}

func TestSessions_Logout(t *testing.T) {
	store := &memSessionStore{}
	m := NewSessions(NewKeyGate(nil, nil), store, time.Hour, nil)

	_, err := m.Login(DefaultKeys[0])
	require.NoError(t, err)
	require.NoError(t, m.Logout())

	_, ok := m.Check()
	assert.False(t, ok)
}

func TestSessions_NilGate(t *testing.T) {
	m := NewSessions(nil, &memSessionStore{}, time.Hour, nil)
	_, err := m.Login(DefaultKeys[0])
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	k := NewKeyringStore(dir)

	_, err := k.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	s := &Session{Authenticated: true, Timestamp: 1760608800000}
	require.NoError(t, k.Save(s))

	got, err := k.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = os.Stat(filepath.Join(dir, sessionFileName))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, k.Clear())
	_, err = k.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	assert.Error(t, k.Save(nil))
}

func TestKeyringStore_FileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("keychain unavailable"))
	t.Cleanup(keyring.MockInit)

	dir := t.TempDir()
	k := NewKeyringStore(dir)

	s := &Session{Authenticated: true, Timestamp: 1760608800000}
	require.NoError(t, k.Save(s))

	b, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"authenticated":true,"timestamp":1760608800000}`, string(b))

	got, err := k.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, k.Clear())
	_, err = k.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestKeyringStore_CorruptFile(t *testing.T) {
	keyring.MockInitWithError(errors.New("keychain unavailable"))
	t.Cleanup(keyring.MockInit)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionFileName), []byte("{"), 0600))

	_, err := NewKeyringStore(dir).Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}
