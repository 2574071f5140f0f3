package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.3.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// probe runs one dependency check and times it.
func probe(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).Round(time.Microsecond).String()}
}

// Health reports database, cache and gateway readiness. Redis is optional,
// so a missing client is skipped rather than failed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{
		"database": {Status: "fail", Message: "not configured"},
		"redis":    {Status: "skip", Message: "not configured"},
		"gateway":  {Status: "fail", Message: "not configured"},
	}
	if h.db != nil {
		checks["database"] = probe(ctx, h.db.Ping)
	}
	if h.redis != nil {
		checks["redis"] = probe(ctx, h.redis.Ping)
	}
	if h.gateway != nil {
		checks["gateway"] = Check{Status: "pass", Message: h.gateway.ChatModel()}
	}

	status, code := "healthy", http.StatusOK
	for _, c := range checks {
		if c.Status == "fail" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	h.JSON(w, code, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Dobro",
		Version: version,
		Endpoints: []string{
			"POST /chat", "POST /lisa-stylist", "POST /colortype-analyzer", "POST /virtual-tryon",
			"GET /topics", "POST /topics", "GET /topics/{id}", "PATCH /topics/{id}", "DELETE /topics/{id}",
			"GET /topics/{id}/messages", "POST /topics/{id}/messages",
			"GET /tenant", "GET /tenants/{slug}", "GET /admin/stats", "GET /health", "GET /metrics",
		},
	})
}
