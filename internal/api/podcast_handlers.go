package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"podcast-api/internal/service"
)

const msgPodcastDeleted = "Podcast supprimé avec succès."

func (h *Handler) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	podcasts, err := h.Services.Podcasts.List(r.Context(), actor(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPodcastResponses(podcasts))
}

// SearchPodcasts filters by titre, categorie and animateur. Filters combine
// with AND; absent filters match everything.
func (h *Handler) SearchPodcasts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	podcasts, err := h.Services.Podcasts.Search(r.Context(), actor(r.Context()), service.PodcastSearch{
		Titre:     query.Get("titre"),
		Categorie: query.Get("categorie"),
		Animateur: query.Get("animateur"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPodcastResponses(podcasts))
}

func (h *Handler) GetPodcast(w http.ResponseWriter, r *http.Request) {
	podcast, err := h.Services.Podcasts.Get(r.Context(), actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPodcastResponse(podcast))
}

// CreatePodcast checks the caller's role before the body is read, so a
// listener is refused with 403 whatever they upload.
func (h *Handler) CreatePodcast(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Podcasts.AuthorizeCreate(r.Context(), actor(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := h.readPayload(w, r, "image")
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	podcast, err := h.Services.Podcasts.Create(r.Context(), actor(r.Context()), podcastInput(p))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPodcastResponse(podcast))
}

func (h *Handler) UpdatePodcast(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r, "image")
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	podcast, err := h.Services.Podcasts.Update(r.Context(), actor(r.Context()), chi.URLParam(r, "id"), podcastInput(p))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPodcastResponse(podcast))
}

func (h *Handler) DeletePodcast(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Podcasts.Delete(r.Context(), actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPodcastDeleted)
}

func podcastInput(p *payload) service.PodcastInput {
	return service.PodcastInput{
		Titre:       p.str("titre"),
		Categorie:   p.str("categorie"),
		Description: p.str("description"),
		Image:       p.attachment("image"),
	}
}
