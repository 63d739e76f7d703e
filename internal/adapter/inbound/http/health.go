package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/service"
)

// storeCheckTimeout bounds the store reachability probe.
const storeCheckTimeout = 2 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// Pinger is implemented by stores that can probe their backend (SQLite).
// In-memory and file stores are always reachable and don't implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	storePinger Pinger
	scheduler   *service.Scheduler
	version     string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(storePinger Pinger, scheduler *service.Scheduler, version string) *HealthChecker {
	return &HealthChecker{
		storePinger: storePinger,
		scheduler:   scheduler,
		version:     version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.storePinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, storeCheckTimeout)
		if err := h.storePinger.Ping(pingCtx); err != nil {
			checks["store"] = fmt.Sprintf("unreachable: %v", err)
			healthy = false
		} else {
			checks["store"] = "ok"
		}
		cancel()
	} else {
		checks["store"] = "ok (in-process)"
	}

	// The reconciler is stale when it has missed several passes in a row.
	// One missed tick is tolerated; the loop may just be mid-pass.
	if h.scheduler != nil {
		last := h.scheduler.LastPass()
		switch {
		case last.IsZero():
			checks["reconciler"] = "pending first pass"
		case time.Since(last) > 3*h.scheduler.Interval():
			checks["reconciler"] = fmt.Sprintf("stale: last pass %s ago", time.Since(last).Round(time.Second))
			healthy = false
		default:
			checks["reconciler"] = "ok"
		}
	} else {
		checks["reconciler"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is the fallback when no checker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	})
}
