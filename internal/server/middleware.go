package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"podcast-api/internal/api"
	"podcast-api/internal/observability/logging"
	"podcast-api/internal/observability/metrics"
	"podcast-api/internal/service"
)

// requestSubject carries the authenticated user id back out to middleware
// that wrapped the request before authentication ran.
type requestSubject struct {
	mu     sync.Mutex
	userID string
}

type subjectKey struct{}

func withSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), subjectKey{}, &requestSubject{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setSubject(ctx context.Context, userID string) {
	if subject, ok := ctx.Value(subjectKey{}).(*requestSubject); ok {
		subject.mu.Lock()
		subject.userID = userID
		subject.mu.Unlock()
	}
}

func subjectFromContext(ctx context.Context) string {
	subject, ok := ctx.Value(subjectKey{}).(*requestSubject)
	if !ok {
		return ""
	}
	subject.mu.Lock()
	defer subject.mu.Unlock()
	return subject.userID
}

// requestLogFields adds the authenticated user to request log lines.
func requestLogFields(r *http.Request, _ int, _ time.Duration) []any {
	fields := []any{"remote_ip", clientIP(r)}
	if userID := subjectFromContext(r.Context()); userID != "" {
		fields = append(fields, "user_id", userID)
	}
	return fields
}

// authenticate resolves the request token when one is sent. Unknown or
// expired tokens leave the request anonymous so public routes keep working;
// requireUser rejects them on protected routes.
func authenticate(handler *api.Handler, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, token, ok, err := handler.AuthenticateRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					next.ServeHTTP(w, r)
					return
				}
				logger.ErrorContext(r.Context(), "session lookup failed", "error", err)
				writeMiddlewareError(w, http.StatusServiceUnavailable, msgUnavailable)
				return
			}

			setSubject(r.Context(), user.ID)
			ctx := api.ContextWithUser(r.Context(), user, token)
			ctx = logging.ContextWithUserID(ctx, user.ID)
			if ctxLogger := logging.LoggerFromContext(ctx); ctxLogger != nil {
				ctx = logging.ContextWithLogger(ctx, ctxLogger.With("user_id", user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.UserFromContext(r.Context()); !ok {
			writeMiddlewareError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func globalRateLimit(rl *rateLimiter, recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.AllowRequest() {
				recorder.RateLimited("global")
				writeMiddlewareError(w, http.StatusTooManyRequests, msgTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loginRateLimit throttles login attempts per client IP. A failing shared
// store rejects the attempt rather than disabling the limit.
func loginRateLimit(rl *rateLimiter, recorder *metrics.Recorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := rl.AllowLogin(r.Context(), clientIP(r))
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limiter failure", "error", err)
				writeMiddlewareError(w, http.StatusServiceUnavailable, msgUnavailable)
				return
			}
			if !allowed {
				recorder.RateLimited("login")
				if retryAfter > 0 {
					seconds := int(retryAfter.Round(time.Second) / time.Second)
					w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				}
				writeMiddlewareError(w, http.StatusTooManyRequests, msgTooManyLogins)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// auditMiddleware records every mutating request with its outcome and, when
// authenticated, the acting user.
func auditMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !shouldAudit(r) {
				next.ServeHTTP(w, r)
				return
			}
			sr := metrics.NewResponseRecorder(w)
			start := time.Now()
			next.ServeHTTP(sr, r)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", clientIP(r),
			}
			if requestID, ok := logging.RequestIDFromContext(r.Context()); ok {
				fields = append(fields, "request_id", requestID)
			}
			if userID := subjectFromContext(r.Context()); userID != "" {
				fields = append(fields, "user_id", userID)
			}
			logger.InfoContext(r.Context(), "audit", fields...)
		})
	}
}

func shouldAudit(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
