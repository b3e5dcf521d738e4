package api

import (
	"time"

	"podcast-api/internal/models"
)

type userResponse struct {
	ID        string    `json:"id"`
	Nom       string    `json:"nom"`
	Prenom    string    `json:"prenom"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Nom:       user.Nom,
		Prenom:    user.Prenom,
		Email:     user.Email,
		Role:      user.Role.String(),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func newUserResponses(users []models.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, newUserResponse(user))
	}
	return out
}

type podcastResponse struct {
	ID          string    `json:"id"`
	Titre       string    `json:"titre"`
	Categorie   string    `json:"categorie"`
	Description string    `json:"description"`
	Image       *string   `json:"image"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newPodcastResponse(podcast models.Podcast) podcastResponse {
	resp := podcastResponse{
		ID:          podcast.ID,
		Titre:       podcast.Titre,
		Categorie:   podcast.Categorie,
		Description: podcast.Description,
		UserID:      podcast.UserID,
		CreatedAt:   podcast.CreatedAt,
		UpdatedAt:   podcast.UpdatedAt,
	}
	if podcast.Image != "" {
		image := podcast.Image
		resp.Image = &image
	}
	return resp
}

func newPodcastResponses(podcasts []models.Podcast) []podcastResponse {
	out := make([]podcastResponse, 0, len(podcasts))
	for _, podcast := range podcasts {
		out = append(out, newPodcastResponse(podcast))
	}
	return out
}

type episodeResponse struct {
	ID          string    `json:"id"`
	Titre       string    `json:"titre"`
	Description string    `json:"description"`
	Audio       string    `json:"audio"`
	PodcastID   string    `json:"podcast_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newEpisodeResponse(episode models.Episode) episodeResponse {
	return episodeResponse{
		ID:          episode.ID,
		Titre:       episode.Titre,
		Description: episode.Description,
		Audio:       episode.Audio,
		PodcastID:   episode.PodcastID,
		CreatedAt:   episode.CreatedAt,
		UpdatedAt:   episode.UpdatedAt,
	}
}

func newEpisodeResponses(episodes []models.Episode) []episodeResponse {
	out := make([]episodeResponse, 0, len(episodes))
	for _, episode := range episodes {
		out = append(out, newEpisodeResponse(episode))
	}
	return out
}

type userMessageResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type loginResponse struct {
	Message   string       `json:"message"`
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}
