package user

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/auth"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := memory.New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewService(st, tokens, zerolog.Nop())
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"empty username", RegisterRequest{Password: "secret1"}, "username"},
		{"whitespace username", RegisterRequest{Username: "   ", Password: "secret1"}, "username"},
		{"short password", RegisterRequest{Username: "alice", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Register(ctx, &tc.req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice", u.DisplayName) // defaults to username
	assert.NotEmpty(t, u.AvatarColor)

	_, err = s.Register(ctx, &RegisterRequest{Username: "alice", Password: "another1"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	resp, err := s.Login(ctx, &LoginRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, u.ID, resp.User.ID)

	// The issued token round-trips through validation.
	userID, username, err := auth.NewTokenManager("test-secret", time.Hour).ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
	assert.Equal(t, "alice", username)

	_, err = s.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong-pass"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// Unknown accounts fail identically to bad passwords.
	_, err = s.Login(ctx, &LoginRequest{Username: "nobody", Password: "secret1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRegisterCustomDisplayName(t *testing.T) {
	s := newService(t)

	u, err := s.Register(context.Background(), &RegisterRequest{
		Username: "bob", Password: "secret1", DisplayName: "Bob the Builder",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob the Builder", u.DisplayName)
}

func TestSearchExact(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	alice, err := s.Register(ctx, &RegisterRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	bob, err := s.Register(ctx, &RegisterRequest{Username: "bob", Password: "secret1"})
	require.NoError(t, err)

	found, err := s.SearchExact(ctx, "bob", alice.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, found.ID)

	// Prefixes never match; handles cannot be enumerated.
	_, err = s.SearchExact(ctx, "b", alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.SearchExact(ctx, "alice", alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.SearchExact(ctx, "  ", alice.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
