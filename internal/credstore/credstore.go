// Package credstore persists the portal session between runs: the access
// token, the refresh token, and the serialized user profile, each under a
// fixed key of a key/value Storage. It never returns read errors to callers;
// anything unreadable is treated as absent.
package credstore

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
)

// Fixed storage keys. Changing these logs every existing user out.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Storage is a string key/value store. Implementations must be safe for
// concurrent use. Get reports ok=false for a missing key.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Profile is the authenticated user as reported by the backend.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsStaff  bool   `json:"is_staff,omitempty"`
}

// Credentials is a complete persisted session.
type Credentials struct {
	Token *oauth2.Token
	User  Profile
}

// Store reads and writes Credentials through a Storage.
type Store struct {
	storage Storage
	logger  *slog.Logger
}

// New creates a Store over the given Storage.
func New(storage Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{storage: storage, logger: logger}
}

// Load returns the persisted session when all three keys are present and
// the profile decodes. Any missing key, read failure, or malformed profile
// yields (nil, false); a partial session is never returned.
func (s *Store) Load() (*Credentials, bool) {
	access, ok := s.get(KeyAccessToken)
	if !ok {
		return nil, false
	}

	refresh, ok := s.get(KeyRefreshToken)
	if !ok {
		return nil, false
	}

	rawUser, ok := s.get(KeyUser)
	if !ok {
		return nil, false
	}

	var user Profile
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		s.logger.Warn("stored profile is malformed, treating session as absent",
			slog.String("error", err.Error()),
		)

		return nil, false
	}

	return &Credentials{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
		},
		User: user,
	}, true
}

// Save writes the access token, refresh token, and profile. The three
// writes are not atomic at the storage layer; a failed Save can leave a
// subset behind, which Load reports as absent.
func (s *Store) Save(tok *oauth2.Token, user Profile) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("credstore: encoding profile: %w", err)
	}

	if err := s.SaveTokens(tok); err != nil {
		return err
	}

	if err := s.storage.Set(KeyUser, string(raw)); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", KeyUser, err)
	}

	return nil
}

// SaveTokens writes the access and refresh tokens without touching the
// profile key.
func (s *Store) SaveTokens(tok *oauth2.Token) error {
	if err := s.storage.Set(KeyAccessToken, tok.AccessToken); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", KeyAccessToken, err)
	}

	if err := s.storage.Set(KeyRefreshToken, tok.RefreshToken); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", KeyRefreshToken, err)
	}

	return nil
}

// SaveAccessToken replaces only the access token.
func (s *Store) SaveAccessToken(access string) error {
	if err := s.storage.Set(KeyAccessToken, access); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", KeyAccessToken, err)
	}

	return nil
}

// AccessToken returns the persisted access token, or "" when absent.
func (s *Store) AccessToken() string {
	v, _ := s.get(KeyAccessToken)
	return v
}

// Clear removes all three keys. Idempotent; failures are logged, never
// returned.
func (s *Store) Clear() {
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := s.storage.Remove(key); err != nil {
			s.logger.Warn("failed to remove credential key",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// get reads one key, folding errors and empty values into "absent".
func (s *Store) get(key string) (string, bool) {
	v, ok, err := s.storage.Get(key)
	if err != nil {
		s.logger.Warn("failed to read credential key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	if !ok || v == "" {
		return "", false
	}

	return v, true
}
