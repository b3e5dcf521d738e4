package server

import (
	"errors"
	"net/http"

	"podcast-api/internal/api"
)

const (
	msgUnauthenticated = "Non authentifié."
	msgTooManyRequests = "Trop de requêtes, veuillez réessayer plus tard."
	msgTooManyLogins   = "Trop de tentatives de connexion, veuillez réessayer plus tard."
	msgUnavailable     = "Service temporairement indisponible."
	msgInternal        = "Erreur interne du serveur."
	msgRouteNotFound   = "Endpoint non trouvé."
	msgMethodNotAllow  = "Méthode non autorisée."
)

// writeMiddlewareError normalises middleware error responses to the API JSON shape.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, status, errors.New(message))
}
