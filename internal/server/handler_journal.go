package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/galaxyprobe/internal/journal"
	"github.com/me/galaxyprobe/pkg/model"
)

type journalResponse struct {
	Tool    string          `json:"tool"`
	File    string          `json:"file"`
	Entries []journal.Entry `json:"entries"`
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tool := chi.URLParam(r, "tool")
	if s.journal == nil {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: "no journal directory configured"})
		return
	}

	entries, err := s.journal.Entries(tool)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if len(entries) == 0 {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("journal", tool))
		return
	}
	respondOK(w, reqID, journalResponse{Tool: tool, File: s.journal.Path(tool), Entries: entries})
}
