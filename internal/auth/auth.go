// Package auth holds the session store backing the HTTP API and the
// auth-state event stream consumed by interactive surfaces.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/avidalv/mortgage-tracker/internal/config"
)

// User is an authenticated party.
type User struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Store validates credentials against the configured users and tracks issued
// session tokens.
type Store struct {
	mu       sync.RWMutex
	users    []config.UserConfig
	sessions map[string]User
	stream   *Stream
}

// NewStore creates a session store for the configured users.
func NewStore(users []config.UserConfig) *Store {
	return &Store{
		users:    users,
		sessions: make(map[string]User),
		stream:   NewStream(),
	}
}

// Stream exposes the auth-state event stream fed by this store.
func (s *Store) Stream() *Stream {
	return s.stream
}

// Login checks the credentials and issues a bearer token on success.
func (s *Store) Login(ctx context.Context, email, password string) (string, User, error) {
	var matched *config.UserConfig
	for i := range s.users {
		if s.users[i].Email == email &&
			subtle.ConstantTimeCompare([]byte(s.users[i].Password), []byte(password)) == 1 {
			matched = &s.users[i]
			break
		}
	}
	if matched == nil {
		return "", User{}, fmt.Errorf("invalid credentials")
	}

	token, err := newToken()
	if err != nil {
		return "", User{}, fmt.Errorf("failed to issue session token: %w", err)
	}

	user := User{Email: matched.Email, Role: matched.Role}
	s.mu.Lock()
	s.sessions[token] = user
	s.mu.Unlock()

	s.stream.publish(&user)
	return token, user, nil
}

// Validate resolves a bearer token to its user. Returns nil for unknown
// tokens.
func (s *Store) Validate(ctx context.Context, token string) *User {
	s.mu.RLock()
	user, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return &user
}

// Logout revokes a token. Revoking an unknown token is a no-op.
func (s *Store) Logout(ctx context.Context, token string) {
	s.mu.Lock()
	_, existed := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if existed {
		s.stream.publish(nil)
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
