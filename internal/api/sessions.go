package api

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// ErrBadCredentials is returned when a sign in does not match the configured user.
var ErrBadCredentials = errors.New("invalid username or password")

// Sessions issues and checks bearer tokens.
type Sessions struct {
	username string
	password string

	mu     sync.RWMutex
	tokens map[string]string // token -> username
}

// NewSessions accepts sign ins for username/password. An empty username
// accepts any non-empty credentials.
func NewSessions(username, password string) *Sessions {
	return &Sessions{username: username, password: password, tokens: map[string]string{}}
}

// SignIn checks credentials and returns a signed in user.
func (s *Sessions) SignIn(username, password string) (*schema.User, error) {
	if username == "" {
		return nil, ErrBadCredentials
	}
	if s.username != "" && (username != s.username || password != s.password) {
		return nil, ErrBadCredentials
	}
	token := uuid.NewString()

	s.mu.Lock()
	s.tokens[token] = username
	s.mu.Unlock()
	return &schema.User{Username: username, Token: token}, nil
}

// User returns the user a token was issued to.
func (s *Sessions) User(token string) (*schema.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	return &schema.User{Username: name, Token: token}, true
}

// SignOut revokes a token.
func (s *Sessions) SignOut(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}
