package storage

import (
	"context"
	"errors"

	"podcast-api/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when another user already owns the email.
	ErrEmailTaken = errors.New("email already in use")
)

// Repository exposes the datastore operations required by the services.
// Implementations must be safe for concurrent use.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error)
	SetUserPassword(ctx context.Context, id, passwordHash string) (models.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreatePodcast(ctx context.Context, params CreatePodcastParams) (models.Podcast, error)
	GetPodcast(ctx context.Context, id string) (models.Podcast, error)
	ListPodcasts(ctx context.Context, filter PodcastFilter) ([]models.Podcast, error)
	UpdatePodcast(ctx context.Context, id string, update PodcastUpdate) (models.Podcast, error)
	DeletePodcast(ctx context.Context, id string) error

	CreateEpisode(ctx context.Context, params CreateEpisodeParams) (models.Episode, error)
	GetEpisode(ctx context.Context, id string) (models.Episode, error)
	ListEpisodes(ctx context.Context, filter EpisodeFilter) ([]models.Episode, error)
	UpdateEpisode(ctx context.Context, id string, update EpisodeUpdate) (models.Episode, error)
	DeleteEpisode(ctx context.Context, id string) error
}

// CreateUserParams captures the attributes stored for a new account. The
// password must already be hashed.
type CreateUserParams struct {
	Nom          string
	Prenom       string
	Email        string
	PasswordHash string
	Role         models.Role
}

// UserUpdate represents the fields that can be modified for an existing user.
type UserUpdate struct {
	Nom    *string
	Prenom *string
	Email  *string
	Role   *models.Role
}

// UserFilter narrows ListUsers. A zero Role lists every account.
type UserFilter struct {
	Role models.Role
}

type CreatePodcastParams struct {
	Titre       string
	Categorie   string
	Description string
	Image       string
	UserID      string
}

type PodcastUpdate struct {
	Titre       *string
	Categorie   *string
	Description *string
	Image       *string
}

// PodcastFilter narrows ListPodcasts. Text fields are case-insensitive
// substring matches and every non-empty field must match. Animateur is matched
// against the owner's nom, prenom and full name.
type PodcastFilter struct {
	OwnerID   string
	Titre     string
	Categorie string
	Animateur string
}

type CreateEpisodeParams struct {
	Titre       string
	Description string
	Audio       string
	PodcastID   string
}

type EpisodeUpdate struct {
	Titre       *string
	Description *string
	Audio       *string
}

// EpisodeFilter narrows ListEpisodes. Podcast matches the parent podcast
// title and Animateur the parent podcast owner's name.
type EpisodeFilter struct {
	PodcastID string
	Titre     string
	Podcast   string
	Animateur string
}
