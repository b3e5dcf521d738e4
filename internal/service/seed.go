package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"podcast-api/internal/models"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// AdminSeed describes an administrator account provisioned outside the API.
type AdminSeed struct {
	Nom      string
	Prenom   string
	Email    string
	Password string
}

// SeedAdministrator creates seed when the datastore holds no administrator
// yet. An existing account with the seed email is promoted instead, keeping
// its password. created reports whether a new account was written.
func (s *UserService) SeedAdministrator(ctx context.Context, seed AdminSeed) (user models.User, created bool, err error) {
	admins, err := s.repo.ListUsers(ctx, storage.UserFilter{Role: models.RoleAdministrator})
	if err != nil {
		return models.User{}, false, fmt.Errorf("seed administrator: %w", err)
	}
	if len(admins) > 0 {
		return admins[0], false, nil
	}
	return s.provisionAdministrator(ctx, seed, false)
}

// BootstrapAdministrator creates seed or, when the email is already
// registered, promotes that account and resets its password.
func (s *UserService) BootstrapAdministrator(ctx context.Context, seed AdminSeed) (models.User, bool, error) {
	return s.provisionAdministrator(ctx, seed, true)
}

func (s *UserService) provisionAdministrator(ctx context.Context, seed AdminSeed, resetPassword bool) (models.User, bool, error) {
	rules := createUserRules{
		Nom:      strings.TrimSpace(seed.Nom),
		Prenom:   strings.TrimSpace(seed.Prenom),
		Email:    normalizeEmail(seed.Email),
		Password: seed.Password,
		Role:     models.RoleAdministrator.String(),
	}
	fields, err := validation.Struct(rules, userMessages)
	if err != nil {
		return models.User{}, false, err
	}
	if err := invalid(fields); err != nil {
		return models.User{}, false, err
	}

	existing, err := s.repo.FindUserByEmail(ctx, rules.Email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return models.User{}, false, fmt.Errorf("provision administrator: %w", err)
	default:
		user, err := s.promote(ctx, existing, rules, resetPassword)
		return user, false, err
	}

	hash, err := s.hasher.Hash(rules.Password)
	if err != nil {
		return models.User{}, false, fmt.Errorf("provision administrator: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, storage.CreateUserParams{
		Nom:          rules.Nom,
		Prenom:       rules.Prenom,
		Email:        rules.Email,
		PasswordHash: hash,
		Role:         models.RoleAdministrator,
	})
	if err != nil {
		return models.User{}, false, fmt.Errorf("provision administrator: %w", err)
	}
	s.logger.InfoContext(ctx, "administrator provisioned", "user_id", user.ID, "email", user.Email)
	return user, true, nil
}

func (s *UserService) promote(ctx context.Context, existing models.User, rules createUserRules, resetPassword bool) (models.User, error) {
	user := existing
	if existing.Role != models.RoleAdministrator {
		role := models.RoleAdministrator
		updated, err := s.repo.UpdateUser(ctx, existing.ID, storage.UserUpdate{Role: &role})
		if err != nil {
			return models.User{}, fmt.Errorf("promote administrator: %w", err)
		}
		user = updated
		s.logger.InfoContext(ctx, "user promoted to administrator", "user_id", user.ID, "previous_role", existing.Role.String())
	}
	if !resetPassword {
		return user, nil
	}

	hash, err := s.hasher.Hash(rules.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("promote administrator: %w", err)
	}
	user, err = s.repo.SetUserPassword(ctx, user.ID, hash)
	if err != nil {
		return models.User{}, fmt.Errorf("promote administrator: %w", err)
	}
	if err := s.sessions.RevokeUser(ctx, user.ID, ""); err != nil {
		s.logger.WarnContext(ctx, "revoke sessions after administrator bootstrap", "user_id", user.ID, "error", err)
	}
	return user, nil
}
