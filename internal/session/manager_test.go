package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/store"
)

const adminEmail = "admin@lettermill.test"

type fixture struct {
	store    *store.FlatStore
	registry *identity.Registry
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenFlat(t.TempDir())
	require.NoError(t, err)
	reg := identity.NewRegistry(st, adminEmail)
	return &fixture{
		store:    st,
		registry: reg,
		manager:  NewManager(reg, st),
	}
}

func (f *fixture) register(t *testing.T, email, password string, questions []identity.SecurityQA) {
	t.Helper()
	_, err := f.registry.Register(context.Background(), email, email, password, questions)
	require.NoError(t, err)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", nil)

	result, err := f.manager.Login(ctx, "alice@example.com", "pw123", nil)
	require.NoError(t, err)
	assert.False(t, result.Challenge)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "alice@example.com", result.Profile.Email)

	user, err := f.registry.Find(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", []identity.SecurityQA{
		{Question: "First pet?", Answer: "rex"},
	})

	_, unknownErr := f.manager.Login(ctx, "nobody@example.com", "pw123", nil)
	_, wrongPwErr := f.manager.Login(ctx, "alice@example.com", "wrong", nil)
	_, wrongAnswerErr := f.manager.Login(ctx, "alice@example.com", "pw123", []string{"fido"})

	assert.ErrorIs(t, unknownErr, common.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPwErr, common.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongAnswerErr, common.ErrInvalidCredentials)
}

func TestLoginSecurityChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", []identity.SecurityQA{
		{Question: "First pet?", Answer: "rex"},
		{Question: "Birth city?", Answer: "Lisbon"},
	})

	// Correct password but no answers: a challenge, not success or failure.
	result, err := f.manager.Login(ctx, "alice@example.com", "pw123", nil)
	require.NoError(t, err)
	assert.True(t, result.Challenge)
	assert.Empty(t, result.Token)
	assert.Equal(t, []string{"First pet?", "Birth city?"}, result.Questions)

	// Answers are matched case-insensitively after normalization.
	result, err = f.manager.Login(ctx, "alice@example.com", "pw123", []string{"REX", " lisbon "})
	require.NoError(t, err)
	assert.False(t, result.Challenge)
	assert.NotEmpty(t, result.Token)

	// Partial answers fail like any bad credential.
	_, err = f.manager.Login(ctx, "alice@example.com", "pw123", []string{"rex"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", nil)
	require.NoError(t, f.registry.SetDisabled(ctx, "alice@example.com", true))

	_, err := f.manager.Login(ctx, "alice@example.com", "pw123", nil)
	assert.ErrorIs(t, err, common.ErrAccountDisabled)
}

func TestCurrentAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", nil)

	result, err := f.manager.Login(ctx, "alice@example.com", "pw123", nil)
	require.NoError(t, err)

	user, err := f.manager.Current(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	f.manager.Logout(result.Token)
	_, err = f.manager.Current(ctx, result.Token)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	// Logging out twice is harmless.
	f.manager.Logout(result.Token)
}

func TestCurrentRejectsStaleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com", "pw123", nil)

	result, err := f.manager.Login(ctx, "alice@example.com", "pw123", nil)
	require.NoError(t, err)

	// Simulate the account being replaced out of band: same email, new id.
	user, err := f.store.GetUser(ctx, "alice@example.com")
	require.NoError(t, err)
	user.ID = user.ID + 100
	require.NoError(t, f.store.UpdateUser(ctx, user))

	_, err = f.manager.Current(ctx, result.Token)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestCurrentUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Current(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}
