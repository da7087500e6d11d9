// Package auth covers credential hashing and bearer-token issuing. The
// same HS256 token authenticates HTTP requests and the websocket handshake.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

// HashPassword one-way hashes a plaintext secret. The plaintext is never
// persisted or logged anywhere.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(err, "hash password")
	}
	return string(hashed), nil
}

// CheckPassword compares a plaintext secret against its stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}
	return nil
}

// Claims is the token payload.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the user.
func (tm *TokenManager) Issue(u *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-sphere",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})

	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", apperr.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken verifies the signature and expiry, returning the caller's
// identity.
func (tm *TokenManager) ValidateToken(tokenString string) (int64, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return tm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, "", apperr.New(apperr.KindUnauthorized, "invalid token")
	}
	return claims.UserID, claims.Username, nil
}
