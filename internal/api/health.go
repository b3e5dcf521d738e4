package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds each dependency ping so a hung backend cannot stall the
// liveness probe.
const probeTimeout = 2 * time.Second

type componentStatus struct {
	Component  string `json:"component"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services []componentStatus `json:"services"`
}

type probe struct {
	name string
	ping Pinger
}

func (h *Handler) probes() []probe {
	candidates := []probe{
		{"datastore", h.Store},
		{"sessions", h.Sessions},
		{"rate_limiter", h.RateLimiter},
	}
	probes := candidates[:0]
	for _, p := range candidates {
		if p.ping != nil {
			probes = append(probes, p)
		}
	}
	return probes
}

// checkComponents pings every backend concurrently. Results keep the probe
// order so responses are stable.
func (h *Handler) checkComponents(ctx context.Context) ([]componentStatus, bool) {
	probes := h.probes()
	results := make([]componentStatus, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			started := time.Now()
			err := p.ping.Ping(pingCtx)
			results[i] = componentStatus{Component: p.name, Status: "ok", DurationMS: time.Since(started).Milliseconds()}
			if err != nil {
				results[i].Status = "degraded"
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	for _, result := range results {
		if result.Status != "ok" {
			healthy = false
		}
	}

	// An open upload breaker only degrades writes, so it is reported
	// without failing the probe.
	if h.MediaState != nil {
		status := "ok"
		if state := h.MediaState(); state != "closed" {
			status = state
		}
		results = append(results, componentStatus{Component: "media", Status: status})
	}
	return results, healthy
}

// Health answers 200 when every backend responds and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components, healthy := h.checkComponents(r.Context())
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Services: components})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Services: components})
}
