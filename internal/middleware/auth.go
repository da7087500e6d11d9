package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
)

type contextKey string

const (
	// UserKey holds the authenticated user's id in the request context.
	UserKey contextKey = "user_id"
	// UsernameKey holds the authenticated user's username.
	UsernameKey contextKey = "username"
)

// TokenValidator decouples the middleware from the auth package.
type TokenValidator interface {
	ValidateToken(tokenString string) (int64, string, error)
}

// Auth rejects requests without a valid bearer token and injects the
// caller's identity into the request context.
type Auth struct {
	validator TokenValidator
	log       zerolog.Logger
}

func NewAuth(v TokenValidator, log zerolog.Logger) *Auth {
	return &Auth{validator: v, log: log.With().Str("component", "auth-middleware").Logger()}
}

func (a *Auth) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			apperr.WriteHTTP(w, a.log, apperr.New(apperr.KindUnauthorized, "missing authentication token"))
			return
		}

		userID, username, err := a.validator.ValidateToken(tokenString)
		if err != nil {
			apperr.WriteHTTP(w, a.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter so browser websocket clients can authenticate.
func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// UserID extracts the authenticated user's id from a request context.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserKey).(int64)
	return id, ok
}

// Username extracts the authenticated user's username.
func Username(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(UsernameKey).(string)
	return name, ok
}
