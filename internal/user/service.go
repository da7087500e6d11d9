package user

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/auth"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// avatarPalette is the fixed set of accent colors assigned at registration.
var avatarPalette = []string{
	"#E0533D", "#3D7BE0", "#3DE07B", "#E0A23D",
	"#9B3DE0", "#3DD6E0", "#E03D98", "#7BE03D",
}

// Service implements registration, login and user lookup.
type Service struct {
	store  store.Store
	tokens *auth.TokenManager
	log    zerolog.Logger
}

func NewService(s store.Store, tokens *auth.TokenManager, log zerolog.Logger) *Service {
	return &Service{
		store:  s,
		tokens: tokens,
		log:    log.With().Str("component", "user-service").Logger(),
	}
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	User        model.User `json:"user"`
}

func (r *RegisterRequest) validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.Username == "" {
		return apperr.Field(apperr.KindValidation, "username", "username is required")
	}
	if len(r.Username) > 50 {
		return apperr.Field(apperr.KindValidation, "username", "username is too long")
	}
	if len(r.Password) < 6 {
		return apperr.Field(apperr.KindValidation, "password", "password must be at least 6 characters")
	}
	if r.DisplayName == "" {
		r.DisplayName = r.Username
	}
	return nil
}

// Register creates an account with a hashed secret and a palette color.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	color := avatarPalette[rand.IntN(len(avatarPalette))]
	u, err := s.store.CreateUser(ctx, req.Username, hashed, req.DisplayName, color)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{AccessToken: token, User: *u}, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.store.GetUserByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// SearchExact finds the single user with exactly the given username,
// never matching the caller. Substring matching is deliberately not
// offered so handles cannot be enumerated.
func (s *Service) SearchExact(ctx context.Context, username string, excludeID int64) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Field(apperr.KindValidation, "username", "username is required")
	}
	return s.store.SearchUserExact(ctx, username, excludeID)
}
