package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	a := NewAuthenticator(s, NewTokens("test-secret", time.Hour))
	a.cost = bcrypt.MinCost
	return a
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	token, exp, err := tokens.Issue(&models.User{UID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	user, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UID)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	token, _, err := tokens.Issue(&models.User{UID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Hour).Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokens("secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthenticator_SignUpAndIn(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	user, token, err := a.SignUp(ctx, "  Alice@Example.com ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, user.UID)
	assert.NotEmpty(t, token)

	signedIn, token2, err := a.SignIn(ctx, "ALICE@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.UID, signedIn.UID)

	verified, err := a.Tokens().Verify(token2)
	require.NoError(t, err)
	assert.Equal(t, user.UID, verified.UID)
}

func TestAuthenticator_Errors(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	_, _, err := a.SignUp(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = a.SignUp(ctx, "BOB@example.com", "secret2")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = a.SignUp(ctx, "not-an-email", "secret1")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, _, err = a.SignUp(ctx, "carol@example.com", "123")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, _, err = a.SignIn(ctx, "bob@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSession_Lifecycle(t *testing.T) {
	a := newTestAuthenticator(t)
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSession(a, dir)
	require.NoError(t, err)
	assert.Nil(t, s.CurrentUser())
	assert.Empty(t, s.Token())

	var seen []*models.User
	unsubscribe := s.OnChange(func(u *models.User) { seen = append(seen, u) })

	user, err := s.SignUp(ctx, "dana@example.com", "password")
	require.NoError(t, err)
	require.NotNil(t, s.CurrentUser())
	assert.Equal(t, user.UID, s.CurrentUser().UID)

	_, err = os.Stat(filepath.Join(dir, SessionFile))
	require.NoError(t, err)

	reopened, err := OpenSession(a, dir)
	require.NoError(t, err)
	require.NotNil(t, reopened.CurrentUser(), "session survives reopen")
	assert.Equal(t, "dana@example.com", reopened.CurrentUser().Email)

	require.NoError(t, s.SignOut())
	assert.Nil(t, s.CurrentUser())
	require.NoError(t, s.SignOut(), "signing out twice is fine")

	require.Len(t, seen, 2)
	assert.Equal(t, user.UID, seen[0].UID)
	assert.Nil(t, seen[1])

	unsubscribe()
	unsubscribe()
	_, err = s.SignIn(ctx, "dana@example.com", "password")
	require.NoError(t, err)
	assert.Len(t, seen, 2, "no notifications after unsubscribe")
}

func TestSession_FailedSignInKeepsState(t *testing.T) {
	a := newTestAuthenticator(t)
	s, err := OpenSession(a, t.TempDir())
	require.NoError(t, err)

	calls := 0
	s.OnChange(func(*models.User) { calls++ })

	_, err = s.SignIn(context.Background(), "nobody@example.com", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, s.CurrentUser())
	assert.Zero(t, calls)
}

func TestSession_ExpiredTokenIsSignedOut(t *testing.T) {
	a := newTestAuthenticator(t)
	s, err := OpenSession(a, t.TempDir())
	require.NoError(t, err)

	_, err = s.SignUp(context.Background(), "erin@example.com", "password")
	require.NoError(t, err)
	require.NotNil(t, s.CurrentUser())

	a.tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.Nil(t, s.CurrentUser())
}

func TestOpenSession_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SessionFile), []byte("uid: [unterminated"), 0o600))

	_, err := OpenSession(newTestAuthenticator(t), dir)
	assert.Error(t, err)
}
