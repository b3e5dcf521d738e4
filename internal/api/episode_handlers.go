package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"podcast-api/internal/service"
)

const msgEpisodeDeleted = "Épisode supprimé avec succès."

func (h *Handler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := h.Services.Episodes.ListByPodcast(r.Context(), actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEpisodeResponses(episodes))
}

func (h *Handler) SearchEpisodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	episodes, err := h.Services.Episodes.Search(r.Context(), actor(r.Context()), service.EpisodeSearch{
		Titre:     query.Get("titre"),
		Podcast:   query.Get("podcast"),
		Animateur: query.Get("animateur"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEpisodeResponses(episodes))
}

func (h *Handler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := h.Services.Episodes.Get(r.Context(), actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEpisodeResponse(episode))
}

// CreateEpisode adds an episode to the podcast named in the path.
func (h *Handler) CreateEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Episodes.AuthorizeCreate(r.Context(), actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := h.readPayload(w, r, "audio")
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	episode, err := h.Services.Episodes.Create(r.Context(), actor(r.Context()), chi.URLParam(r, "id"), episodeInput(p))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEpisodeResponse(episode))
}

func (h *Handler) UpdateEpisode(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r, "audio")
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	episode, err := h.Services.Episodes.Update(r.Context(), actor(r.Context()), chi.URLParam(r, "id"), episodeInput(p))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEpisodeResponse(episode))
}

func (h *Handler) DeleteEpisode(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Episodes.Delete(r.Context(), actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgEpisodeDeleted)
}

func episodeInput(p *payload) service.EpisodeInput {
	return service.EpisodeInput{
		Titre:       p.str("titre"),
		Description: p.str("description"),
		Audio:       p.attachment("audio"),
	}
}
