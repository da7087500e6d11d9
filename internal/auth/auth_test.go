package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	require.NoError(t, CheckPassword(hash, "correct horse"))

	err = CheckPassword(hash, "battery staple")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cret", time.Hour)
	u := &model.User{ID: 42, Username: "alice"}

	token, err := tm.Issue(u)
	require.NoError(t, err)

	userID, username, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "alice", username)
}

func TestTokenRejections(t *testing.T) {
	tm := NewTokenManager("s3cret", time.Hour)
	u := &model.User{ID: 42, Username: "alice"}

	token, err := tm.Issue(u)
	require.NoError(t, err)

	// Wrong secret.
	_, _, err = NewTokenManager("other", time.Hour).ValidateToken(token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// Garbage.
	_, _, err = tm.ValidateToken("not.a.token")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// Expired.
	expired, err := NewTokenManager("s3cret", -time.Minute).Issue(u)
	require.NoError(t, err)
	_, _, err = tm.ValidateToken(expired)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
