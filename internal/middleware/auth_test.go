package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
)

type fakeValidator struct {
	userID   int64
	username string
	err      error
}

func (f *fakeValidator) ValidateToken(token string) (int64, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.userID, f.username, nil
}

func TestAuthInjectsIdentity(t *testing.T) {
	a := NewAuth(&fakeValidator{userID: 7, username: "alice"}, zerolog.Nop())

	var gotID int64
	var gotName string
	handler := a.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		require.True(t, ok)
		gotID = id
		name, ok := Username(r.Context())
		require.True(t, ok)
		gotName = name
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), gotID)
	assert.Equal(t, "alice", gotName)
}

func TestAuthQueryParamFallback(t *testing.T) {
	a := NewAuth(&fakeValidator{userID: 7, username: "alice"}, zerolog.Nop())

	called := false
	handler := a.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	// Browser websocket clients cannot set headers; the token rides the
	// query string instead.
	req := httptest.NewRequest(http.MethodGet, "/ws?token=some-token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejections(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		a := NewAuth(&fakeValidator{}, zerolog.Nop())
		handler := a.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		a := NewAuth(&fakeValidator{err: apperr.New(apperr.KindUnauthorized, "invalid token")}, zerolog.Nop())
		handler := a.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		a := NewAuth(&fakeValidator{err: errors.New("should not be called")}, zerolog.Nop())
		handler := a.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
