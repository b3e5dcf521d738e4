package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"podcast-api/internal/observability/logging"
	"podcast-api/internal/service"
	"podcast-api/internal/validation"
)

const (
	msgNotFound        = "Ressource non trouvée."
	msgForbidden       = "Accès non autorisé."
	msgUnauthenticated = "Non authentifié."
	msgBadRequest      = "Requête invalide."
	msgInvalidData     = "Les données fournies sont invalides."
	msgUploadFailed    = "Le téléversement du fichier a échoué."
	msgConflict        = "Conflit avec l'état actuel de la ressource."
	msgInternal        = "Erreur interne du serveur."
	msgTooLarge        = "La requête est trop volumineuse."
	msgNotHost         = "Cet utilisateur n'est pas animateur."
	msgBadCredentials  = "Email ou mot de passe incorrect"
	msgWrongPassword   = "Ancien mot de passe incorrect"
	msgSelfDelete      = "Vous ne pouvez pas supprimer votre propre compte."
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields validation.Fields `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// writeServiceError maps a service error to its status code. Unexpected
// errors are logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: msgInvalidData, Fields: verr.Fields})
		return
	}

	status, message := statusFor(err)
	logger := logging.FromContext(r.Context(), h.logger())
	switch status {
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	case http.StatusBadGateway:
		logger.WarnContext(r.Context(), "upstream failure", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, errors.New(message))
}

func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, msgTooLarge
	case errors.Is(err, service.ErrNotHost):
		return http.StatusNotFound, msgNotHost
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, msgUnauthenticated
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	case errors.Is(err, service.ErrWrongPassword):
		return http.StatusBadRequest, msgWrongPassword
	case errors.Is(err, service.ErrSelfDelete):
		return http.StatusBadRequest, msgSelfDelete
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest, msgBadRequest
	case errors.Is(err, service.ErrUploadFailed):
		return http.StatusBadGateway, msgUploadFailed
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, msgConflict
	default:
		return http.StatusInternalServerError, msgInternal
	}
}
