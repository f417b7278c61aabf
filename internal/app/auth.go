package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"staybook/internal/domain"
)

type AuthService struct {
	users  domain.UserRepository
	hasher domain.PasswordHasher
	tokens domain.TokenIssuer
	now    func() time.Time
}

func NewAuthService(u domain.UserRepository, h domain.PasswordHasher, t domain.TokenIssuer) *AuthService {
	return &AuthService{users: u, hasher: h, tokens: t, now: time.Now}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=64,bcrypt"`
}

type LoginResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return domain.User{}, invalid(err)
	}

	_, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return domain.User{}, fmt.Errorf("email is taken: %w", domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := domain.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// lost a race with a concurrent sign-up
			return domain.User{}, fmt.Errorf("email is taken: %w", domain.ErrConflict)
		}
		return domain.User{}, err
	}
	log.Info().Str("user_id", u.ID).Msg("user registered")
	return u, nil
}

// Login never distinguishes an unknown email from a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return LoginResult{}, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return LoginResult{}, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Token: tok, User: u}, nil
}

// Authenticate resolves a bearer token to its user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing token: %w", domain.ErrUnauthorized)
	}
	return s.tokens.Verify(token)
}

func (s *AuthService) CurrentUser(ctx context.Context, id string) (domain.User, error) {
	return s.users.GetUser(ctx, id)
}
