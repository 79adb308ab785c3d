package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// healthResponse is the shape returned by GET /health.
type healthResponse struct {
	Status   string         `json:"status"`
	Database string         `json:"database"`
	Stats    healthStats    `json:"stats"`
	Uptime   uptimeResponse `json:"uptime"`
}

type healthStats struct {
	Tenants int64 `json:"tenants"`
}

type uptimeResponse struct {
	StartedAt  string `json:"started_at"`
	UptimeSec  int64  `json:"uptime_sec"`
	UptimeText string `json:"uptime_text"`
}

// handleHealth reports liveness and whether the database answers. It is
// unauthenticated so load balancers can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok"}

	count, err := s.tenants.Count(r.Context())
	if err != nil {
		slog.Error("health: database check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
	}
	resp.Stats.Tenants = count

	uptime := s.now().Sub(s.startTime)
	resp.Uptime = uptimeResponse{
		StartedAt:  s.startTime.Format(time.RFC3339),
		UptimeSec:  int64(uptime.Seconds()),
		UptimeText: formatUptime(uptime),
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// formatUptime returns a human-readable uptime string like "2d 5h 30m 12s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
