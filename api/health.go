// api/health.go
package api

import (
	"net/http"
)

// HealthResponse is the GET /api/health payload. The service reports ok
// as long as the primary store answers; redis is advisory.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := HealthResponse{Status: "ok", Database: "ok", Redis: "ok"}
	status := http.StatusOK

	if s.dbHealth == nil {
		resp.Database = "memory"
	} else if err := s.dbHealth.Health(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	if s.redis == nil {
		resp.Redis = "disabled"
	} else if err := s.redis.Health(r.Context()); err != nil {
		resp.Redis = err.Error()
	}

	s.sendJSON(w, status, resp)
}
