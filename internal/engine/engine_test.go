package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/galaxyprobe/internal/combo"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/inputstate"
	"github.com/me/galaxyprobe/internal/journal"
	"github.com/me/galaxyprobe/pkg/model"
)

type step struct {
	state galaxy.JobState
	err   error
}

// fakeService hands out job ids in submission order and replays a scripted
// sequence of state checks per job. The last step repeats.
type fakeService struct {
	mu        sync.Mutex
	reject    func(inputs map[string]any) error
	scripts   map[string][]step
	submitted []map[string]any
	checks    map[string]int
	order     []string
}

func newFakeService() *fakeService {
	return &fakeService{scripts: map[string][]step{}, checks: map[string]int{}}
}

func (f *fakeService) Submit(_ context.Context, _, _ string, inputs map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject != nil {
		if err := f.reject(inputs); err != nil {
			return "", err
		}
	}
	f.submitted = append(f.submitted, inputs)
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *fakeService) JobState(_ context.Context, jobID string) (galaxy.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, jobID)
	script, ok := f.scripts[jobID]
	if !ok {
		return galaxy.StateOK, nil
	}
	i := f.checks[jobID]
	f.checks[jobID]++
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i].state, script[i].err
}

type journaled struct {
	tool    string
	input   any
	message string
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journaled
}

func (j *fakeJournal) Record(tool string, input any, message string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journaled{tool, input, message})
	return true, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	jobs    map[string]*model.JobRecord
	updates int
}

func (r *fakeRecorder) CreateJob(_ context.Context, job *model.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = map[string]*model.JobRecord{}
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRecorder) UpdateJob(_ context.Context, job *model.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	r.updates++
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.RetryInterval = time.Millisecond
	return cfg
}

func baseState() inputstate.Node {
	return inputstate.FromValue(map[string]any{
		"input": map[string]any{"values": []any{map[string]any{"src": "hda", "id": "f2db41e1fa331b3e"}}},
		"databases_type": map[string]any{
			"databases_selector": "cached",
			"input_databases":    []any{"rfam-5.8s"},
		},
		"sequencing_type": map[string]any{"sequencing_type_selector": "not_paired"},
	})
}

func sortmernaTask() *Task {
	return &Task{RunID: "run_1", ToolID: "toolshed/sortmerna/2.1b.6", ToolName: "Filter with SortMeRNA", HistoryID: "hist", Base: baseState()}
}

func TestPollQueuedRunningError(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{state: galaxy.StateQueued}, {state: galaxy.StateRunning}, {state: galaxy.StateError}}
	jr := &fakeJournal{}
	e := New(svc, jr, nil, testConfig(), nil)

	out, err := e.RunCombination(context.Background(), sortmernaTask(), 0, combo.Combination{"databases_selector": "cached"})
	require.NoError(t, err)
	assert.Equal(t, galaxy.StateError, out.State)
	assert.Equal(t, 3, svc.checks["job-1"])

	require.Len(t, jr.entries, 1)
	assert.Equal(t, MsgJobError, jr.entries[0].message)
	assert.Equal(t, "Filter with SortMeRNA", jr.entries[0].tool)
}

func TestPollReturnsAnyNonPendingState(t *testing.T) {
	for _, state := range []galaxy.JobState{galaxy.StateOK, galaxy.StatePaused, "deleted"} {
		svc := newFakeService()
		svc.scripts["job-1"] = []step{{state: galaxy.StateNew}, {state: state}}
		e := New(svc, nil, nil, testConfig(), nil)
		got, err := e.Poll(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, state, got)
	}
}

func TestPollRetriesTransportFailures(t *testing.T) {
	svc := newFakeService()
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	svc.scripts["job-1"] = []step{
		{err: &galaxy.Error{Op: galaxy.OpJobState, Err: refused}},
		{err: &galaxy.Error{Op: galaxy.OpJobState, Err: &galaxy.HTTPError{StatusCode: 503}}},
		{state: galaxy.StateRunning},
		{state: galaxy.StateOK},
	}
	e := New(svc, nil, nil, testConfig(), nil)
	state, err := e.Poll(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, galaxy.StateOK, state)
	assert.Equal(t, 4, svc.checks["job-1"])
}

func TestPollRetriesServerErrors(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{
		{err: &galaxy.Error{Op: galaxy.OpJobState, Err: &galaxy.HTTPError{StatusCode: 500, Body: "Internal Server Error"}}},
		{state: galaxy.StateError},
	}
	e := New(svc, nil, nil, testConfig(), nil)
	state, err := e.Poll(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, galaxy.StateError, state)
	assert.Equal(t, 2, svc.checks["job-1"])
}

func TestPollReturnsOtherErrors(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{err: &galaxy.Error{Op: galaxy.OpJobState, Err: &galaxy.HTTPError{StatusCode: 404}}}}
	e := New(svc, nil, nil, testConfig(), nil)
	_, err := e.Poll(context.Background(), "job-1")
	require.Error(t, err)
	assert.True(t, galaxy.IsNotFound(err))
}

func TestPollTimeout(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{state: galaxy.StateRunning}}
	cfg := testConfig()
	cfg.PollTimeout = 20 * time.Millisecond
	e := New(svc, nil, nil, cfg, nil)
	_, err := e.Poll(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestPollCancelled(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{state: galaxy.StateRunning}}
	e := New(svc, nil, nil, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Poll(ctx, "job-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunBatchRejectionDoesNotStopBatch(t *testing.T) {
	svc := newFakeService()
	svc.reject = func(inputs map[string]any) error {
		db := inputs["databases_type"].(map[string]any)
		if db["databases_selector"] == "history" {
			return &galaxy.Error{Op: galaxy.OpSubmit, Err: &galaxy.HTTPError{StatusCode: 400, Body: "parameter 'input_databases': required"}}
		}
		return nil
	}
	svc.scripts["job-2"] = []step{{state: galaxy.StateRunning}, {state: galaxy.StateError}}
	jr := &fakeJournal{}
	rec := &fakeRecorder{}
	e := New(svc, jr, rec, testConfig(), nil)

	combos := []combo.Combination{
		{"databases_selector": "cached", "sequencing_type_selector": "paired"},
		{"databases_selector": "history", "sequencing_type_selector": "paired"},
		{"databases_selector": "cached", "sequencing_type_selector": "not_paired"},
	}
	outcomes, err := e.RunBatch(context.Background(), sortmernaTask(), combos)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Len(t, svc.submitted, 2)
	assert.True(t, outcomes[1].Rejected())
	assert.Equal(t, "job-1", outcomes[0].JobID)
	assert.Equal(t, galaxy.StateOK, outcomes[0].State)
	assert.Equal(t, galaxy.StateError, outcomes[2].State)

	// Every submission happens before the first state check.
	assert.Equal(t, []string{"job-1", "job-2", "job-2"}, svc.order)

	require.Len(t, jr.entries, 2)
	assert.Equal(t, "galaxy submit: HTTP 400: parameter 'input_databases': required", jr.entries[0].message)
	assert.Equal(t, MsgJobError, jr.entries[1].message)

	s := Summarize(outcomes)
	assert.Equal(t, Summary{Total: 3, Rejected: 1, OK: 1, Failed: 1}, s)
	assert.Equal(t, 2, s.Failures())

	require.Len(t, rec.jobs, 3)
	assert.Equal(t, 2, rec.updates)
	var outcomesSeen []model.JobOutcome
	for _, o := range outcomes {
		outcomesSeen = append(outcomesSeen, rec.jobs[o.record.ID].Outcome)
	}
	assert.Equal(t, []model.JobOutcome{model.JobOutcomeOK, model.JobOutcomeRejected, model.JobOutcomeError}, outcomesSeen)
}

func TestSubmittedInputKeepsIDsJournalNormalizes(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{state: galaxy.StateError}}
	jr := &fakeJournal{}
	e := New(svc, jr, nil, testConfig(), nil)

	_, err := e.RunCombination(context.Background(), sortmernaTask(), 0, combo.Combination{"sequencing_type_selector": "paired"})
	require.NoError(t, err)

	require.Len(t, svc.submitted, 1)
	sent := svc.submitted[0]
	assert.Equal(t, "f2db41e1fa331b3e", sent["input"].(map[string]any)["values"].([]any)[0].(map[string]any)["id"])
	assert.Equal(t, "paired", sent["sequencing_type"].(map[string]any)["sequencing_type_selector"])

	require.Len(t, jr.entries, 1)
	logged := jr.entries[0].input.(map[string]any)
	assert.Equal(t, "Test ids 3", logged["input"].(map[string]any)["values"].([]any)[0].(map[string]any)["id"])
}

func TestMultiValuedKeyReplacesList(t *testing.T) {
	svc := newFakeService()
	e := New(svc, nil, nil, testConfig(), nil)
	both := []any{"rfam-5.8s", "silva-euk-18s"}

	_, err := e.RunCombination(context.Background(), sortmernaTask(), 0, combo.Combination{"input_databases": both})
	require.NoError(t, err)
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, both, svc.submitted[0]["databases_type"].(map[string]any)["input_databases"])
}

func TestVerify(t *testing.T) {
	template := baseState()

	merged, _ := inputstate.Merge(template, combo.Combination{"databases_selector": "history"})
	assert.NoError(t, verify(template, merged))

	// A whole conditional replaced by a value still provides its leaves.
	merged, _ = inputstate.Merge(template, combo.Combination{"sequencing_type": "paired"})
	assert.NoError(t, verify(template, merged))

	lost := inputstate.FromValue(map[string]any{
		"input":          map[string]any{"values": []any{map[string]any{"src": "hda", "id": "x"}}},
		"databases_type": map[string]any{"databases_selector": "cached"},
	})
	err := verify(template, lost)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databases_type|input_databases")
	assert.Contains(t, err.Error(), "sequencing_type|sequencing_type_selector")

	assert.NoError(t, verify(nil, lost))
}

func TestRealJournalDedupesRepeatedFailures(t *testing.T) {
	svc := newFakeService()
	svc.scripts["job-1"] = []step{{state: galaxy.StateError}}
	svc.scripts["job-2"] = []step{{state: galaxy.StateError}}
	jr := journal.New(t.TempDir(), nil)
	e := New(svc, jr, nil, testConfig(), nil)

	// Two runs against different datasets normalize to the same entry.
	task := sortmernaTask()
	_, err := e.RunCombination(context.Background(), task, 0, combo.Combination{"sequencing_type_selector": "paired"})
	require.NoError(t, err)
	task.Base = inputstate.Clone(task.Base)
	inputstate.SetByName(task.Base, "id", "0a1b2c3d4e5f6a7b")
	_, err = e.RunCombination(context.Background(), task, 0, combo.Combination{"sequencing_type_selector": "paired"})
	require.NoError(t, err)

	entries, err := jr.Entries("Filter with SortMeRNA")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, MsgJobError, entries[0].ErrorMessage)
}
