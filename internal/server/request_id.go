package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"podcast-api/internal/observability/logging"
)

const (
	requestIDHeader   = "X-Request-Id"
	maxRequestIDBytes = 128
)

// requestIDs tags every request with an id, echoed on the response and
// attached to the request logger.
type requestIDs struct {
	logger *slog.Logger
	newID  func() string
}

func requestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return requestIDs{logger: logger, newID: uuid.NewString}.middleware
}

func (m requestIDs) middleware(next http.Handler) http.Handler {
	logger := m.logger
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if !acceptableRequestID(id) {
			id = m.newID()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logging.ContextWithRequestID(r.Context(), id)
		ctx = logging.ContextWithLogger(ctx, logging.WithContext(ctx, logger))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// acceptableRequestID keeps caller ids that are short printable ASCII, so
// they cannot forge log lines or bloat every record.
func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDBytes {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
