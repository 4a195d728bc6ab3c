package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/electrocart/api/internal/platform/httpx"
)

// ReadinessProbe checks a backing dependency. A non-nil error marks the
// service not ready.
type ReadinessProbe func(ctx context.Context) error

// BuildInfo carries the version metadata reported by the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	build  BuildInfo
	probes map[string]ReadinessProbe
	now    func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata reported on /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthProbe registers a named readiness probe.
func WithHealthProbe(name string, probe ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		if probe != nil {
			h.probes[name] = probe
		}
	}
}

// WithHealthClock overrides the clock, for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build:  BuildInfo{StartedAt: time.Now()},
		probes: map[string]ReadinessProbe{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz reports liveness and build metadata; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).String(),
		"timestamp":   now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered probe and fails with 503 when any dependency
// is unreachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]any, len(h.probes))
	for name, probe := range h.probes {
		started := h.now()
		err := probe(ctx)
		check := map[string]any{
			"status":    "ok",
			"latencyMs": h.now().Sub(started).Milliseconds(),
		}
		if err != nil {
			status = http.StatusServiceUnavailable
			check["status"] = "unavailable"
			check["error"] = err.Error()
		}
		checks[name] = check
	}

	body := map[string]any{
		"status": "ok",
		"checks": checks,
	}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	httpx.WriteJSON(w, status, body)
}
