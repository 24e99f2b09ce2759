// File: internal/server/handlers.go
package server

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/internal/probe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// handleRun runs the pipeline once. Pipeline failures are part of the result
// body, so a finished run always answers 200.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := s.slots.Acquire(r.Context(), 1); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "no run slot available")
		return
	}
	defer s.slots.Release(1)

	ctx := r.Context()
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	result := s.runner.Run(ctx, probe.RunOptions{Message: r.URL.Query().Get("message")})
	if result.Failed() {
		s.logger.Warn("Run finished with an error.", zap.String("run_id", result.RunID), zap.String("error", result.Error))
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthz is the plain-text liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]string{"error": message})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
