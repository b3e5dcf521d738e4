package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"podcast-api/internal/models"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Nom                  string
	Prenom               string
	Email                string
	Password             string
	PasswordConfirmation string
}

// ResetPasswordInput changes the caller's password.
type ResetPasswordInput struct {
	OldPassword             string
	NewPassword             string
	NewPasswordConfirmation string
}

// Session is the result of a successful login.
type Session struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// AuthService runs the credential pipeline: signup, login, logout, password
// reset and bearer token authentication.
type AuthService struct {
	*base
	sessions Sessions
	hasher   PasswordHasher
}

type registerRules struct {
	Nom                  string `json:"nom" validate:"required,max=255"`
	Prenom               string `json:"prenom" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

type loginRules struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetPasswordRules struct {
	OldPassword             string `json:"old_password" validate:"required"`
	NewPassword             string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"eqfield=NewPassword"`
}

// Register creates a listener account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	rules := registerRules{
		Nom:                  strings.TrimSpace(input.Nom),
		Prenom:               strings.TrimSpace(input.Prenom),
		Email:                normalizeEmail(input.Email),
		Password:             input.Password,
		PasswordConfirmation: input.PasswordConfirmation,
	}
	fields, err := validation.Struct(rules, userMessages)
	if err != nil {
		return models.User{}, err
	}
	if err := emailAvailable(ctx, s.repo, fields, rules.Email, ""); err != nil {
		return models.User{}, err
	}
	if err := invalid(fields); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(rules.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("register: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, storage.CreateUserParams{
		Nom:          rules.Nom,
		Prenom:       rules.Prenom,
		Email:        rules.Email,
		PasswordHash: hash,
		Role:         models.RoleListener,
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		return models.User{}, emailTakenError()
	}
	if err != nil {
		return models.User{}, storeErr("register", err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the credentials and issues a bearer token. Unknown emails
// and wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	rules := loginRules{Email: normalizeEmail(email), Password: password}
	fields, err := validation.Struct(rules, credentialMessages)
	if err != nil {
		return Session{}, err
	}
	if err := invalid(fields); err != nil {
		return Session{}, err
	}

	user, err := s.repo.FindUserByEmail(ctx, rules.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if err := s.hasher.Verify(user.PasswordHash, rules.Password); err != nil {
		s.logger.DebugContext(ctx, "login rejected", "user_id", user.ID, "error", err)
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("login: create session: %w", err)
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("logout: %w", ErrUnauthenticated)
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ResetPassword replaces the caller's password after checking the old one.
// Every other session of the caller is revoked; currentToken stays valid.
func (s *AuthService) ResetPassword(ctx context.Context, actor *models.User, currentToken string, input ResetPasswordInput) error {
	if actor == nil {
		return fmt.Errorf("reset password: %w", ErrUnauthenticated)
	}
	rules := resetPasswordRules(input)
	fields, err := validation.Struct(rules, credentialMessages)
	if err != nil {
		return err
	}
	if err := invalid(fields); err != nil {
		return err
	}

	user, err := s.repo.GetUser(ctx, actor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("reset password: %w", ErrUnauthenticated)
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if err := s.hasher.Verify(user.PasswordHash, rules.OldPassword); err != nil {
		return ErrWrongPassword
	}

	hash, err := s.hasher.Hash(rules.NewPassword)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if _, err := s.repo.SetUserPassword(ctx, user.ID, hash); err != nil {
		return storeErr("reset password", err)
	}
	if err := s.sessions.RevokeUser(ctx, user.ID, currentToken); err != nil {
		s.logger.WarnContext(ctx, "revoke sessions after password reset", "user_id", user.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

// Authenticate resolves a bearer token to its user. Tokens of deleted users
// are revoked on sight.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.User, time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return models.User{}, time.Time{}, ErrUnauthenticated
	}
	userID, expiresAt, ok, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return models.User{}, time.Time{}, fmt.Errorf("authenticate: %w", err)
	}
	if !ok {
		return models.User{}, time.Time{}, ErrUnauthenticated
	}

	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		if revokeErr := s.sessions.Revoke(ctx, token); revokeErr != nil {
			s.logger.WarnContext(ctx, "revoke orphaned session", "user_id", userID, "error", revokeErr)
		}
		return models.User{}, time.Time{}, ErrUnauthenticated
	}
	if err != nil {
		return models.User{}, time.Time{}, fmt.Errorf("authenticate: %w", err)
	}
	return user, expiresAt, nil
}
