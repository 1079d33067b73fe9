package http

import (
	"context"
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

const probeTimeout = 3 * time.Second

// handleHealth reports overall status with per-dependency detail.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Probes))
	healthy := true
	for _, probe := range s.deps.Probes {
		if err := probe.Check(ctx); err != nil {
			checks[probe.Name] = err.Error()
			healthy = false
		} else {
			checks[probe.Name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeData(w, status, map[string]any{
		"status":         state,
		"checks":         checks,
		"uptime_seconds": uptimeSeconds(s.Uptime()),
	})
}

// handleReady reports readiness: all probes must pass.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	for _, probe := range s.deps.Probes {
		if err := probe.Check(ctx); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", probe.Name+": "+err.Error())
			return
		}
	}
	writeData(w, http.StatusOK, map[string]any{"ready": true})
}

// handleLive reports liveness: the process is serving.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"alive": true})
}
