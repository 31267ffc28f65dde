// Package tokens holds short-lived, single-use password-reset tokens in
// memory. Tokens expire after a fixed TTL and are swept opportunistically.
package tokens

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lettermill/lettermill/internal/common"
)

const DefaultTTL = time.Hour

type entry struct {
	email     string
	expiresAt time.Time
}

type Store struct {
	mu     sync.Mutex
	tokens map[string]entry
	ttl    time.Duration
	now    func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		tokens: make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a reset token for the given email.
func (s *Store) Issue(email string) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.tokens[token] = entry{email: email, expiresAt: s.now().Add(s.ttl)}
	return token
}

// Peek returns the email a valid token was issued for without consuming it.
func (s *Store) Peek(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok || s.now().After(e.expiresAt) {
		return "", common.ErrNotFound
	}
	return e.email, nil
}

// Consume validates and invalidates a token, returning the email it was
// issued for. Expired or unknown tokens fail with common.ErrNotFound.
func (s *Store) Consume(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.tokens, token)
		return "", common.ErrNotFound
	}
	delete(s.tokens, token)
	return e.email, nil
}

// sweepLocked drops expired tokens. Caller holds the lock.
func (s *Store) sweepLocked() {
	now := s.now()
	for token, e := range s.tokens {
		if now.After(e.expiresAt) {
			delete(s.tokens, token)
		}
	}
}
