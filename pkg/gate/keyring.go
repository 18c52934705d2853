package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

const (
	keyringService  = "overunder"
	keyringUser     = "session"
	sessionFileName = "session.json"
	sessionFileMode = 0600
)

// KeyringStore keeps the session in the OS keychain and falls back to a
// file in dir when the keychain is unavailable.
type KeyringStore struct {
	dir string
}

func NewKeyringStore(dir string) *KeyringStore {
	return &KeyringStore{dir: dir}
}

func (k *KeyringStore) filePath() string {
	return filepath.Join(k.dir, sessionFileName)
}

// Save stores the session, preferring the keychain.
func (k *KeyringStore) Save(s *Session) error {
	if s == nil {
		return errors.New("session required")
	}

	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := keyring.Set(keyringService, keyringUser, string(b)); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(k.filePath(), b, sessionFileMode)
	}

	// a stale file would outlive a keychain logout
	os.Remove(k.filePath())
	return nil
}

// Load reads the session from the keychain, then the file. A session found
// only in the file is migrated to the keychain.
func (k *KeyringStore) Load() (*Session, error) {
	raw, err := keyring.Get(keyringService, keyringUser)
	if err == nil && raw != "" {
		return decodeSession([]byte(raw))
	}

	b, err := os.ReadFile(k.filePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading session file %s: %w", k.filePath(), err)
	}

	s, err := decodeSession(b)
	if err != nil {
		return nil, err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, string(b)); migrateErr == nil {
		slog.Debug("migrated session from file to OS keychain")
		os.Remove(k.filePath())
	}
	return s, nil
}

// Clear removes the session from both locations.
func (k *KeyringStore) Clear() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("deleting keychain session failed", "error", err)
	}
	if err := os.Remove(k.filePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting session file: %w", err)
	}
	return nil
}

func decodeSession(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}
