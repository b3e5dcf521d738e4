package api

import (
	"context"
	"net/http"
	"strings"

	"podcast-api/internal/models"
)

type contextKey string

const (
	userContextKey  contextKey = "authenticatedUser"
	tokenContextKey contextKey = "sessionToken"
)

// ContextWithUser stores the authenticated user and the token it presented.
func ContextWithUser(ctx context.Context, user models.User, token string) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, tokenContextKey, token)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// ExtractToken returns the bearer token of the request, falling back to the
// session cookie set at login.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest resolves the token of r to a user. ok is false when the
// request carries no token.
func (h *Handler) AuthenticateRequest(r *http.Request) (user models.User, token string, ok bool, err error) {
	token = ExtractToken(r)
	if token == "" {
		return models.User{}, "", false, nil
	}
	user, _, err = h.Services.Auth.Authenticate(r.Context(), token)
	if err != nil {
		return models.User{}, "", true, err
	}
	return user, token, true, nil
}
