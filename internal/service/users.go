package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"podcast-api/internal/models"
	"podcast-api/internal/policy"
	"podcast-api/internal/storage"
	"podcast-api/internal/validation"
)

// CreateUserInput is the administrator payload for a new account.
type CreateUserInput struct {
	Nom      string
	Prenom   string
	Email    string
	Password string
	Role     string
}

// UpdateUserInput is a partial user update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Nom    *string
	Prenom *string
	Email  *string
	Role   *string
}

type UserService struct {
	*base
	sessions Sessions
	hasher   PasswordHasher
}

type createUserRules struct {
	Nom      string `json:"nom" validate:"required,max=255"`
	Prenom   string `json:"prenom" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=administrateur animateur utilisateur"`
}

type updateUserRules struct {
	Nom    *string `json:"nom" validate:"omitnil,min=1,max=255"`
	Prenom *string `json:"prenom" validate:"omitnil,min=1,max=255"`
	Email  *string `json:"email" validate:"omitnil,min=1,email,max=255"`
	Role   *string `json:"role" validate:"omitnil,min=1,oneof=administrateur animateur utilisateur"`
}

// Hosts lists every user holding the host role.
func (s *UserService) Hosts(ctx context.Context, actor *models.User) ([]models.User, error) {
	if actor == nil {
		return nil, fmt.Errorf("list hosts: %w", ErrUnauthenticated)
	}
	users, err := s.repo.ListUsers(ctx, storage.UserFilter{Role: models.RoleHost})
	return users, storeErr("list hosts", err)
}

// Host returns a single host. ErrNotHost is returned when the user exists
// without the host role.
func (s *UserService) Host(ctx context.Context, actor *models.User, id string) (models.User, error) {
	if actor == nil {
		return models.User{}, fmt.Errorf("get host: %w", ErrUnauthenticated)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return models.User{}, storeErr("get host", err)
	}
	if user.Role != models.RoleHost {
		return models.User{}, ErrNotHost
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor *models.User) ([]models.User, error) {
	if err := s.authorize(ctx, actor, policy.ListUsers, policy.Target{}); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx, storage.UserFilter{})
	return users, storeErr("list users", err)
}

func (s *UserService) Get(ctx context.Context, actor *models.User, id string) (models.User, error) {
	if actor == nil {
		return models.User{}, fmt.Errorf("get user: %w", ErrUnauthenticated)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return models.User{}, storeErr("get user", err)
	}
	if err := s.authorize(ctx, actor, policy.ViewUser, policy.Target{User: &user}); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Me returns the stored record of the authenticated caller.
func (s *UserService) Me(ctx context.Context, actor *models.User) (models.User, error) {
	if actor == nil {
		return models.User{}, fmt.Errorf("me: %w", ErrUnauthenticated)
	}
	user, err := s.repo.GetUser(ctx, actor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, fmt.Errorf("me: %w", ErrUnauthenticated)
	}
	return user, storeErr("me", err)
}

func (s *UserService) Create(ctx context.Context, actor *models.User, input CreateUserInput) (models.User, error) {
	if err := s.authorize(ctx, actor, policy.CreateUser, policy.Target{}); err != nil {
		return models.User{}, err
	}

	rules := createUserRules{
		Nom:      strings.TrimSpace(input.Nom),
		Prenom:   strings.TrimSpace(input.Prenom),
		Email:    normalizeEmail(input.Email),
		Password: input.Password,
		Role:     normalizeRole(input.Role),
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
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, storage.CreateUserParams{
		Nom:          rules.Nom,
		Prenom:       rules.Prenom,
		Email:        rules.Email,
		PasswordHash: hash,
		Role:         models.Role(rules.Role),
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		return models.User{}, emailTakenError()
	}
	if err != nil {
		return models.User{}, storeErr("create user", err)
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "role", user.Role.String(), "actor_id", actor.ID)
	return user, nil
}

// Update applies a partial update. Changing the role additionally requires
// the AssignRole permission, so a user editing their own profile cannot
// promote themselves.
func (s *UserService) Update(ctx context.Context, actor *models.User, id string, input UpdateUserInput) (models.User, error) {
	if actor == nil {
		return models.User{}, fmt.Errorf("update user: %w", ErrUnauthenticated)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return models.User{}, storeErr("update user", err)
	}
	if err := s.authorize(ctx, actor, policy.UpdateUser, policy.Target{User: &user}); err != nil {
		return models.User{}, err
	}

	var role *string
	if input.Role != nil {
		normalized := normalizeRole(*input.Role)
		role = &normalized
	}
	if role != nil && *role != user.Role.String() {
		if err := s.authorize(ctx, actor, policy.AssignRole, policy.Target{User: &user}); err != nil {
			return models.User{}, err
		}
	}

	rules := updateUserRules{
		Nom:    trimmed(input.Nom),
		Prenom: trimmed(input.Prenom),
		Role:   role,
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		rules.Email = &email
	}
	fields, err := validation.Struct(rules, userMessages)
	if err != nil {
		return models.User{}, err
	}
	if rules.Email != nil {
		if err := emailAvailable(ctx, s.repo, fields, *rules.Email, user.ID); err != nil {
			return models.User{}, err
		}
	}
	if err := invalid(fields); err != nil {
		return models.User{}, err
	}

	update := storage.UserUpdate{
		Nom:    rules.Nom,
		Prenom: rules.Prenom,
		Email:  rules.Email,
	}
	if role != nil {
		r := models.Role(*role)
		update.Role = &r
	}
	updated, err := s.repo.UpdateUser(ctx, user.ID, update)
	if errors.Is(err, storage.ErrEmailTaken) {
		return models.User{}, emailTakenError()
	}
	if err != nil {
		return models.User{}, storeErr("update user", err)
	}
	if updated.Role != user.Role {
		s.logger.InfoContext(ctx, "user role changed", "user_id", user.ID, "from", user.Role.String(), "to", updated.Role.String(), "actor_id", actor.ID)
	}
	return updated, nil
}

// Delete removes a user, the podcasts they own with their episodes, and
// every session of that user.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id string) error {
	if actor == nil {
		return fmt.Errorf("delete user: %w", ErrUnauthenticated)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return storeErr("delete user", err)
	}
	if err := s.authorize(ctx, actor, policy.DeleteUser, policy.Target{User: &user}); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, user.ID); err != nil {
		return storeErr("delete user", err)
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeUser(ctx, user.ID, ""); err != nil {
			s.logger.WarnContext(ctx, "revoke sessions of deleted user", "user_id", user.ID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", user.ID, "actor_id", actor.ID)
	return nil
}

// emailAvailable records an email field error when a user other than selfID
// already owns email.
func emailAvailable(ctx context.Context, repo storage.Repository, fields validation.Fields, email, selfID string) error {
	if email == "" || fields.Has("email") {
		return nil
	}
	existing, err := repo.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if existing.ID != selfID {
		fields.Add("email", msgEmailTaken)
	}
	return nil
}

func emailTakenError() error {
	return &ValidationError{Fields: validation.Fields{"email": {msgEmailTaken}}}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeRole maps any casing of a known role to its stored value. Unknown
// values are only trimmed so validation reports them on the role field.
func normalizeRole(value string) string {
	if role, err := models.ParseRole(value); err == nil {
		return role.String()
	}
	return strings.TrimSpace(value)
}
