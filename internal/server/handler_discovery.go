package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "galaxyprobe API",
		Version:     "v1",
		Description: "Status of combinatorial tool parameter runs",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET"}, "List runs, newest first. Accepts ?state=, ?limit=, ?offset="},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run"},
			{"/api/v1/runs/{id}/tools", []string{"GET"}, "Tools discovered in a run"},
			{"/api/v1/runs/{id}/jobs", []string{"GET"}, "Submitted combinations. Accepts ?tool_id=, ?state="},
			{"/api/v1/journal/{tool}", []string{"GET"}, "Journaled failing combinations of a tool, by display name"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
