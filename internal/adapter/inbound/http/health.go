package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/snipvault/snipvault/internal/adapter/outbound/memory"
	"github.com/snipvault/snipvault/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	counterStore   *memory.CounterStore
	violationStore *memory.ViolationStore
	sessionStore   *memory.SessionStore
	auditService   *service.AuditService
	version        string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	counterStore *memory.CounterStore,
	violationStore *memory.ViolationStore,
	sessionStore *memory.SessionStore,
	auditService *service.AuditService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		counterStore:   counterStore,
		violationStore: violationStore,
		sessionStore:   sessionStore,
		auditService:   auditService,
		version:        version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Size() acquires each store's lock - if one hangs, we have a problem.
	if h.counterStore != nil {
		checks["rate_limit_counters"] = fmt.Sprintf("ok: %d keys", h.counterStore.Size())
	} else {
		checks["rate_limit_counters"] = "not configured"
	}

	if h.violationStore != nil {
		checks["violations"] = fmt.Sprintf("ok: %d keys", h.violationStore.Size())
	} else {
		checks["violations"] = "not configured"
	}

	if h.sessionStore != nil {
		checks["sessions"] = fmt.Sprintf("ok: %d active", h.sessionStore.Size())
	} else {
		checks["sessions"] = "not configured"
	}

	// Audit channel depth: sustained backpressure means denials are being
	// dropped from the trail.
	if h.auditService != nil {
		depth := h.auditService.ChannelDepth()
		capacity := h.auditService.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.auditService.DroppedRecords(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
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
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
