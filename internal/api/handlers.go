package api

import (
	"context"
	"log/slog"

	"podcast-api/internal/models"
	"podcast-api/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultMaxUploadBytes caps multipart request bodies when Handler does not
// set MaxUploadBytes.
const DefaultMaxUploadBytes int64 = 200 << 20

type Handler struct {
	Services       *service.Services
	Store          Pinger
	Sessions       Pinger
	RateLimiter    Pinger
	MediaState     func() string
	Logger         *slog.Logger
	SessionCookie  SessionCookie
	MaxUploadBytes int64
}

func NewHandler(services *service.Services, store, sessions Pinger) *Handler {
	return &Handler{Services: services, Store: store, Sessions: sessions}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return h.MaxUploadBytes
}

// actor returns the authenticated caller, or nil for anonymous requests.
func actor(ctx context.Context) *models.User {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil
	}
	return &user
}
