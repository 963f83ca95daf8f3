package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2cloudlabs/yolo-transcript/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	db        *database.DB
	redis     *redis.Client
	vendorKey bool
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health endpoint. redis may be nil when no
// cache is configured; vendorConfigured reports whether a vendor API key is
// present.
func NewHealthHandler(db *database.DB, rdb *redis.Client, vendorConfigured bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     rdb,
		vendorKey: vendorConfigured,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// Redis check
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
		cancel()
	} else {
		checks["redis"] = "not_configured"
	}

	// Vendor configuration check
	if h.vendorKey {
		checks["transcription_vendor"] = "configured"
	} else {
		checks["transcription_vendor"] = "not_configured"
		if status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
