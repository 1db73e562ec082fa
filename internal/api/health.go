package api

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickwarner/adshell/internal/middleware"
	"go.uber.org/zap"
)

// HealthHandler reports liveness plus the state of backing stores.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			s.observe(endpoint, method, http.StatusServiceUnavailable, start)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	s.observe(endpoint, method, http.StatusOK, start)
}
