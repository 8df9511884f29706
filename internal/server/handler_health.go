package server

import (
	"net/http"
	"runtime"
	"time"
)

// Version is the server version reported by health and discovery.
const Version = "0.1.0"

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	ActiveRuns int    `json:"active_runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	active := 0
	if s.manager != nil {
		active = s.manager.ActiveCount()
	}
	respondOK(w, reqID, healthResponse{
		Status:     "healthy",
		Version:    Version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		ActiveRuns: active,
	})
}
