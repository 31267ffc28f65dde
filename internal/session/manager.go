// Package session issues and validates server-side sessions. Sessions have
// no time-based expiry; a session dies when the user logs out or when the
// backing user record no longer matches (stale-session detection).
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/models"
	"github.com/lettermill/lettermill/internal/store"
)

// Session associates an opaque token with an authenticated identity.
type Session struct {
	Token  string
	UserID int64
	Email  string
	Admin  bool
}

// Result is the three-way outcome of Login: either a successful session
// (Token + Profile), or a security challenge (Challenge true, Questions set)
// when the account has questions configured and no answers were supplied.
// Failures are reported as errors.
type Result struct {
	Token     string
	Profile   models.Profile
	Challenge bool
	Questions []string
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Session

	registry *identity.Registry
	store    store.Store
}

func NewManager(reg *identity.Registry, st store.Store) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		registry: reg,
		store:    st,
	}
}

// Login authenticates email/password (plus security answers when the account
// has questions configured). Unknown email, wrong password and wrong answers
// all fail with the same common.ErrInvalidCredentials so a caller cannot tell
// which check failed. Disabled accounts fail with common.ErrAccountDisabled
// even when the password is correct.
func (m *Manager) Login(ctx context.Context, email, password string, answers []string) (Result, error) {
	user, err := m.registry.Find(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Result{}, common.ErrInvalidCredentials
		}
		return Result{}, err
	}

	if !identity.CheckPassword(user.PasswordHash, password) {
		return Result{}, common.ErrInvalidCredentials
	}

	if user.Disabled {
		return Result{}, common.ErrAccountDisabled
	}

	if user.HasSecurityQuestions() {
		if len(answers) == 0 {
			questions := make([]string, len(user.SecurityQuestions))
			for i, q := range user.SecurityQuestions {
				questions[i] = q.Question
			}
			return Result{Challenge: true, Questions: questions}, nil
		}
		if len(answers) != len(user.SecurityQuestions) {
			return Result{}, common.ErrInvalidCredentials
		}
		for i, q := range user.SecurityQuestions {
			if !identity.CheckPassword(q.AnswerHash, identity.NormalizeAnswer(answers[i])) {
				return Result{}, common.ErrInvalidCredentials
			}
		}
	}

	now := time.Now()
	user.LastLogin = &now
	if err := m.store.UpdateUser(ctx, user); err != nil {
		return Result{}, err
	}

	sess := Session{
		Token:  uuid.New().String(),
		UserID: user.ID,
		Email:  user.Email,
		Admin:  user.Admin,
	}

	m.mu.Lock()
	m.sessions[sess.Token] = sess
	m.mu.Unlock()

	return Result{Token: sess.Token, Profile: user.Profile()}, nil
}

// Logout unconditionally clears the session. Unknown tokens are a no-op.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Current resolves a token to its backing user record. The session is only
// valid while the stored record still carries the same user id; a session
// whose account was re-created or replaced out of band is rejected.
func (m *Manager) Current(ctx context.Context, token string) (models.User, error) {
	m.mu.RLock()
	sess, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return models.User{}, common.ErrUnauthenticated
	}

	user, err := m.registry.Find(ctx, sess.Email)
	if err != nil || user.ID != sess.UserID {
		return models.User{}, common.ErrUnauthenticated
	}
	return user, nil
}
