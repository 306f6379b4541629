package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/galaxyprobe/pkg/model"
)

// listOptions reads pagination and filters from the query string. valid
// checks the state filter when one is given.
func listOptions(r *http.Request, maxLimit int, valid func(string) bool) (model.ListOptions, *model.APIError) {
	opts, errs := model.ParseListOptions(r.URL.Query(), maxLimit)
	if opts.State != "" && !valid(opts.State) {
		errs = append(errs, model.FieldError{Field: "state", Message: "unknown state " + strconv.Quote(opts.State)})
	}
	if len(errs) > 0 {
		return opts, model.NewValidationError("invalid query parameter", errs...)
	}
	return opts, nil
}

func validRunState(s string) bool { return model.RunState(s).Valid() }

func validJobOutcome(s string) bool { return model.JobOutcome(s).Valid() }

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := listOptions(r, model.MaxRunPageSize, validRunState)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondList(w, reqID, runs, total, opts)
}

// lookupRun writes a 404 and returns nil when the run does not exist.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) *model.Run {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return nil
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		respondOK(w, RequestIDFromContext(r.Context()), run)
	}
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}
	tools, err := s.store.ListTools(r.Context(), run.ID)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if tools == nil {
		tools = []*model.ToolRun{}
	}
	respondOK(w, reqID, tools)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}
	opts, apiErr := listOptions(r, model.MaxJobPageSize, validJobOutcome)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	jobs, total, err := s.store.ListJobs(r.Context(), run.ID, opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if jobs == nil {
		jobs = []*model.JobRecord{}
	}
	respondList(w, reqID, jobs, total, opts)
}
