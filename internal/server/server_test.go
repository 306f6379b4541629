package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/galaxyprobe/internal/journal"
	"github.com/me/galaxyprobe/internal/metrics"
	"github.com/me/galaxyprobe/internal/store"
	"github.com/me/galaxyprobe/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testServer returns a server over an in-memory ledger holding one run with
// two tools and three jobs, plus a journal with one entry for "Tool A".
func testServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC()
	if err := st.CreateRun(ctx, &model.Run{ID: "run_1", HistoryID: "hist", State: model.RunStateRunning, CreatedAt: now}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, tr := range []*model.ToolRun{
		{RunID: "run_1", ToolID: "a", Name: "Tool A", State: model.ToolStateRunning, Combinations: 2},
		{RunID: "run_1", ToolID: "b", Name: "Tool B", State: model.ToolStateSkipped, Reason: "no data tables"},
	} {
		if err := st.UpsertTool(ctx, tr); err != nil {
			t.Fatalf("UpsertTool: %v", err)
		}
	}
	for i, outcome := range []model.JobOutcome{model.JobOutcomeOK, model.JobOutcomeError, model.JobOutcomeRejected} {
		job := &model.JobRecord{
			ID:          "job_" + string(rune('0'+i)),
			RunID:       "run_1",
			ToolID:      "a",
			Combination: i,
			Input:       map[string]any{"db": "x"},
			Outcome:     outcome,
			SubmittedAt: now,
		}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	j := journal.New(t.TempDir(), nil)
	if _, err := j.Record("Tool A", map[string]any{"db": "x"}, "Job has error state"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return New(st, testLogger(), WithJournal(j), WithServiceURL("https://galaxy.example.org"))
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func TestDiscovery(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/", http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "galaxyprobe API" {
		t.Errorf("name = %q", data.Name)
	}
	if len(data.Endpoints) != 7 {
		t.Errorf("endpoints count = %d, want 7", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/health", http.StatusOK)

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" || data.Store != "ok" {
		t.Errorf("health = %+v", data)
	}
	if data.Version != Version || !strings.HasPrefix(data.GoVersion, "go") {
		t.Errorf("version = %q, go = %q", data.Version, data.GoVersion)
	}
	if data.Service != "https://galaxy.example.org" {
		t.Errorf("service = %q", data.Service)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_caller")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req_caller" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs?limit=500", http.StatusOK)
	var runs []model.Run
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 || runs[0].ID != "run_1" {
		t.Fatalf("runs = %+v", runs)
	}
	if env.Pagination == nil || env.Pagination.Total != 1 || env.Pagination.Limit != 100 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestGetRun(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/run_1", http.StatusOK)
	var run model.Run
	json.Unmarshal(env.Data, &run)
	if run.HistoryID != "hist" {
		t.Errorf("run = %+v", run)
	}

	env = doGet(t, srv, "/api/v1/runs/nope", http.StatusNotFound)
	if env.Status != "error" || env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error envelope = %+v", env)
	}
}

func TestListTools(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/run_1/tools", http.StatusOK)
	var tools []model.ToolRun
	json.Unmarshal(env.Data, &tools)
	if len(tools) != 2 {
		t.Fatalf("tools = %+v", tools)
	}
	doGet(t, srv, "/api/v1/runs/nope/tools", http.StatusNotFound)
}

func TestListJobs(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs/run_1/jobs?tool_id=a&limit=2", http.StatusOK)
	var jobs []model.JobRecord
	json.Unmarshal(env.Data, &jobs)
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d", len(jobs))
	}
	if env.Pagination == nil || env.Pagination.Total != 3 || !env.Pagination.HasMore {
		t.Fatalf("pagination = %+v", env.Pagination)
	}
	if env.Pagination.NextOffset == nil || *env.Pagination.NextOffset != 2 {
		t.Errorf("next offset = %v", env.Pagination.NextOffset)
	}

	env = doGet(t, srv, "/api/v1/runs/run_1/jobs?state=ERROR", http.StatusOK)
	json.Unmarshal(env.Data, &jobs)
	if len(jobs) != 1 || jobs[0].Outcome != model.JobOutcomeError {
		t.Errorf("error jobs = %+v", jobs)
	}
}

func TestGetJournal(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/journal/Tool%20A", http.StatusOK)
	var data journalResponse
	json.Unmarshal(env.Data, &data)
	if data.Tool != "Tool A" || len(data.Entries) != 1 {
		t.Fatalf("journal = %+v", data)
	}
	if data.Entries[0].ErrorMessage != "Job has error state" {
		t.Errorf("entry = %+v", data.Entries[0])
	}
	if !strings.HasSuffix(data.File, "Tool A_incorrect_combination.json") {
		t.Errorf("file = %q", data.File)
	}

	doGet(t, srv, "/api/v1/journal/Tool%20B", http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	metrics.JournalEntry("a")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "galaxyprobe_journal_entries_total") {
		t.Error("journal counter missing from /metrics")
	}
}

func TestListRejectsUnknownState(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/runs?state=DONE", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation || len(env.Error.Details) != 1 {
		t.Fatalf("error = %+v", env.Error)
	}
	if env.Error.Details[0].Field != "state" {
		t.Errorf("details = %+v", env.Error.Details)
	}
	doGet(t, srv, "/api/v1/runs/run_1/jobs?state=ok", http.StatusBadRequest)

	env = doGet(t, srv, "/api/v1/runs?limit=ten&offset=-1", http.StatusBadRequest)
	if env.Error == nil || len(env.Error.Details) != 2 {
		t.Errorf("error = %+v", env.Error)
	}
}
