// Package auth holds the client's authentication state: the current user,
// the bearer credential, and observers for auth transitions.
package auth

import (
	"sync"

	"github.com/haasonsaas/courier/pkg/models"
)

// State describes whether a user is currently authenticated.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

// Observer is notified when the auth state transitions. Observers are
// invoked synchronously in registration order; they must not call back
// into the store.
type Observer func(state State)

// Store guards the current user and bearer token. It is the single source
// of truth consulted by the connection layer before opening a channel
// session and by the REST client when injecting credentials.
type Store struct {
	mu        sync.RWMutex
	user      *models.User
	token     string
	observers []Observer
}

// NewStore creates an empty, unauthenticated store.
func NewStore() *Store {
	return &Store{}
}

// SetAuth records a successful login and notifies observers.
func (s *Store) SetAuth(user models.User, token string) {
	s.mu.Lock()
	u := user
	s.user = &u
	s.token = token
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(StateAuthenticated)
	}
}

// Logout clears the auth state and notifies observers.
func (s *Store) Logout() {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(StateUnauthenticated)
	}
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the current user, or nil when unauthenticated.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID returns the current user's identifier, or "" when unauthenticated.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Authenticated reports whether a user and token are present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.token != ""
}

// OnChange registers an observer for auth transitions.
func (s *Store) OnChange(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
