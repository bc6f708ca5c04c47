package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/ariefcatur/custom-orders/internal/memstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(t *testing.T) *auth.Service {
	t.Helper()
	s := auth.NewService(memstore.New(), "unit-test-secret", 30*time.Minute, 24*time.Hour, nil)
	s.HashCost = bcrypt.MinCost
	return s
}

func TestSignupCreatesClient(t *testing.T) {
	ctx := context.Background()
	s := newAuth(t)

	u, err := s.Signup(ctx, auth.SignupInput{Username: "usopp", Email: " Usopp@Example.com ", Password: "sniperking"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleClient, u.Role)
	assert.False(t, u.IsStaff)
	assert.Equal(t, "usopp@example.com", u.Email)
	assert.NotEqual(t, "sniperking", u.PasswordHash)

	_, err = s.Signup(ctx, auth.SignupInput{Username: "usopp2", Email: "usopp@example.com", Password: "sniperking"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSignupValidation(t *testing.T) {
	s := newAuth(t)
	cases := map[string]auth.SignupInput{
		"no username":    {Email: "a@b.c", Password: "longenough"},
		"bad email":      {Username: "a", Email: "nope", Password: "longenough"},
		"short password": {Username: "a", Email: "a@b.c", Password: "short"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Signup(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrBadRequest)
		})
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newAuth(t)
	in := auth.SignupInput{Username: "robin", Email: "robin@example.com", Password: "ohara-archive"}

	first, err := s.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, first.Role)
	assert.True(t, first.IsStaff)

	again, err := s.EnsureAdmin(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestLoginAuthenticateRefresh(t *testing.T) {
	ctx := context.Background()
	s := newAuth(t)
	u, err := s.Signup(ctx, auth.SignupInput{Username: "chopper", Email: "chopper@example.com", Password: "rumble-ball"})
	require.NoError(t, err)

	_, err = s.Login(ctx, "chopper@example.com", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = s.Login(ctx, "nobody@example.com", "rumble-ball")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	toks, err := s.Login(ctx, "CHOPPER@example.com", "rumble-ball")
	require.NoError(t, err)
	assert.Equal(t, "chopper", toks.Username)

	who, err := s.Authenticate(toks.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.UserID)
	assert.Equal(t, access.RoleClient, who.Role)

	_, err = s.Authenticate(toks.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	fresh, err := s.Refresh(ctx, toks.RefreshToken)
	require.NoError(t, err)
	who, err = s.Authenticate(fresh)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.UserID)

	_, err = s.Refresh(ctx, toks.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestExpiredAndForeignTokensAreRejected(t *testing.T) {
	ctx := context.Background()
	s := newAuth(t)
	_, err := s.Signup(ctx, auth.SignupInput{Username: "franky", Email: "franky@example.com", Password: "super-cola"})
	require.NoError(t, err)

	s.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	toks, err := s.Login(ctx, "franky@example.com", "super-cola")
	require.NoError(t, err)
	s.Now = time.Now
	_, err = s.Authenticate(toks.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	other := auth.NewService(memstore.New(), "another-secret-value", time.Hour, time.Hour, nil)
	fresh, err := s.Login(ctx, "franky@example.com", "super-cola")
	require.NoError(t, err)
	_, err = other.Authenticate(fresh.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	// alg=none must never be accepted
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		Role: access.RoleAdmin,
		Type: auth.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "forged",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Authenticate(unsigned)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
