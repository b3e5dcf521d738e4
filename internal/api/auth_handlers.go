package api

import (
	"net/http"

	"podcast-api/internal/service"
)

const (
	msgRegistered    = "Inscription réussie"
	msgLoggedIn      = "Connexion réussie"
	msgLoggedOut     = "Déconnexion réussie"
	msgPasswordReset = "Mot de passe réinitialisé avec succès"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r)
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	user, err := h.Services.Auth.Register(r.Context(), service.RegisterInput{
		Nom:                  p.text("nom"),
		Prenom:               p.text("prenom"),
		Email:                p.text("email"),
		Password:             p.text("password"),
		PasswordConfirmation: p.text("password_confirmation"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userMessageResponse{Message: msgRegistered, User: newUserResponse(user)})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r)
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	session, err := h.Services.Auth.Login(r.Context(), p.text("email"), p.text("password"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.SessionCookie.issue(w, r, session.Token, session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Message:   msgLoggedIn,
		User:      newUserResponse(session.User),
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Services.Auth.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.SessionCookie.clear(w, r)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

// ResetPassword changes the caller's password. The token used for the
// request stays valid; every other session of the caller is revoked.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	p, err := h.readPayload(w, r)
	if err != nil {
		h.writePayloadError(w, r, err)
		return
	}
	defer p.Close()

	err = h.Services.Auth.ResetPassword(r.Context(), actor(r.Context()), tokenFromContext(r.Context()), service.ResetPasswordInput{
		OldPassword:             p.text("old_password"),
		NewPassword:             p.text("new_password"),
		NewPasswordConfirmation: p.text("new_password_confirmation"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPasswordReset)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Services.Users.Me(r.Context(), actor(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
