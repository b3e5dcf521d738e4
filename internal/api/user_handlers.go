package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"podcast-api/internal/service"
)

const (
	msgUserCreated = "Utilisateur créé avec succès."
	msgUserUpdated = "Utilisateur mis à jour avec succès."
	msgUserDeleted = "Utilisateur supprimé avec succès."
)

// Hosts lists the users holding the host role.
func (h *Handler) Hosts(w http.ResponseWriter, r *http.Request) {
	users, err := h.Services.Users.Hosts(r.Context(), actor(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponses(users))
}

func (h *Handler) Host(w http.ResponseWriter, r *http.Request) {
	user, err := h.Services.Users.Host(r.Context(), actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Services.Users.List(r.Context(), actor(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponses(users))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Services.Users.Get(r.Context(), actor(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r)
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	user, err := h.Services.Users.Create(r.Context(), actor(r.Context()), service.CreateUserInput{
		Nom:      p.text("nom"),
		Prenom:   p.text("prenom"),
		Email:    p.text("email"),
		Password: p.text("password"),
		Role:     p.text("role"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userMessageResponse{Message: msgUserCreated, User: newUserResponse(user)})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r)
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	user, err := h.Services.Users.Update(r.Context(), actor(r.Context()), chi.URLParam(r, "id"), service.UpdateUserInput{
		Nom:    p.str("nom"),
		Prenom: p.str("prenom"),
		Email:  p.str("email"),
		Role:   p.str("role"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userMessageResponse{Message: msgUserUpdated, User: newUserResponse(user)})
}

// DeleteUser removes an account together with its podcasts and their
// episodes. Administrators cannot delete themselves.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Users.Delete(r.Context(), actor(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgUserDeleted)
}
