package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/galaxyprobe/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Journal   string `json:"journal"`
	Service   string `json:"service,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     "ok",
		Journal:   "unavailable",
		Service:   s.service,
	}
	if _, _, err := s.store.ListRuns(r.Context(), model.ListOptions{Limit: 1}); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}
	if s.journal != nil {
		resp.Journal = s.journal.Dir()
	}
	respondOK(w, reqID, resp)
}
