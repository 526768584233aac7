package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// ErrNotLoggedIn is returned when no credential file exists for the session.
var ErrNotLoggedIn = errors.New("not logged in")

// Credentials is the persisted identity for a session: who the user is and
// the token pair the REST collaborator authenticates with.
type Credentials struct {
	UserID       int64  `toml:"user_id"`
	Username     string `toml:"username"`
	Email        string `toml:"email"`
	Role         string `toml:"role"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// Store is the thread-safe persisted-session store. The REST client reads
// tokens through it and writes refreshed pairs back; everything else only
// reads the identity fields.
type Store struct {
	mu     sync.RWMutex
	path   string
	creds  Credentials
	loaded bool
}

// NewStore creates a credential store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads credentials from disk. Returns ErrNotLoggedIn if the file is missing.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds Credentials
	if _, err := toml.DecodeFile(s.path, &creds); err != nil {
		if os.IsNotExist(err) {
			return ErrNotLoggedIn
		}
		return err
	}
	s.creds = creds
	s.loaded = true
	return nil
}

// Save persists new credentials and makes them current.
func (s *Store) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeCredFile(s.path, &creds); err != nil {
		return err
	}
	s.creds = creds
	s.loaded = true
	return nil
}

// Clear removes the credential file and forgets the in-memory copy.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = Credentials{}
	s.loaded = false
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Current returns a copy of the loaded credentials.
func (s *Store) Current() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.loaded
}

// UserID returns the current user's id, or 0 when not logged in.
func (s *Store) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.UserID
}

// AccessToken returns the current access token.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// RefreshToken returns the current refresh token.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

// SetTokens replaces the token pair and persists the result. An empty
// refresh token keeps the previous one (the server may rotate only the
// access token).
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.AccessToken = access
	if refresh != "" {
		s.creds.RefreshToken = refresh
	}
	return writeCredFile(s.path, &s.creds)
}

func writeCredFile(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(creds)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
