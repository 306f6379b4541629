// Package engine submits parameter combinations to the execution service and
// follows the resulting jobs until they reach a terminal state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/galaxyprobe/internal/combo"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/inputstate"
	"github.com/me/galaxyprobe/internal/logging"
	"github.com/me/galaxyprobe/internal/metrics"
	"github.com/me/galaxyprobe/pkg/model"
)

// MsgJobError is journaled when a submitted job finishes in the error state.
// Submission rejections are journaled with the rejection text instead.
const MsgJobError = "Job has error state"

// ErrPollTimeout is returned by Poll when the configured poll timeout elapses
// before the job reaches a terminal state.
var ErrPollTimeout = errors.New("poll timeout")

// Service is the part of the execution service the engine calls.
type Service interface {
	Submit(ctx context.Context, toolID, historyID string, inputs map[string]any) (string, error)
	JobState(ctx context.Context, jobID string) (galaxy.JobState, error)
}

// Journal receives failed combinations.
type Journal interface {
	Record(toolName string, input any, message string) (bool, error)
}

// Recorder persists submissions and their outcomes. *store.SQLiteStore
// satisfies it.
type Recorder interface {
	CreateJob(ctx context.Context, job *model.JobRecord) error
	UpdateJob(ctx context.Context, job *model.JobRecord) error
}

// Config holds engine timing and journal settings.
type Config struct {
	// PollInterval is the wait between state checks of a pending job.
	PollInterval time.Duration
	// RetryInterval is the wait after a transport failure.
	RetryInterval time.Duration
	// PollTimeout bounds a single Poll. Zero waits indefinitely.
	PollTimeout time.Duration
	// Placeholders replace the named entries of journaled inputs.
	Placeholders map[string]any
}

// DefaultConfig returns the intervals the service is normally polled with.
func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		RetryInterval: 2 * time.Second,
		Placeholders: map[string]any{
			"id":                           "Test ids 3",
			"__workflow_invocation_uuid__": "Test workflow_invocation-uuid 3",
		},
	}
}

// Task identifies one tool's combinatorial run.
type Task struct {
	RunID     string
	ToolID    string
	ToolName  string
	HistoryID string
	// Base is the observed or built input state combinations are merged into.
	Base inputstate.Node
}

func (t *Task) journalName() string {
	if t.ToolName != "" {
		return t.ToolName
	}
	return t.ToolID
}

// Outcome is the result of one combination.
type Outcome struct {
	Index       int
	Combination combo.Combination
	JobID       string
	State       galaxy.JobState
	// Err is the submission rejection, or the reason polling stopped early.
	Err error

	input   map[string]any
	record  *model.JobRecord
	started time.Time
}

// Rejected reports whether the combination never became a job.
func (o *Outcome) Rejected() bool { return o.JobID == "" && o.Err != nil }

// Summary counts the outcomes of a batch.
type Summary struct {
	Total    int `json:"total"`
	Rejected int `json:"rejected"`
	OK       int `json:"ok"`
	Failed   int `json:"failed"`
	Other    int `json:"other"`
}

// Failures is the number of journaled combinations.
func (s Summary) Failures() int { return s.Rejected + s.Failed }

// Summarize counts outcomes by class.
func Summarize(outcomes []*Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Rejected():
			s.Rejected++
		case o.State == galaxy.StateOK:
			s.OK++
		case o.State == galaxy.StateError:
			s.Failed++
		default:
			s.Other++
		}
	}
	return s
}

// Engine runs combinations against a Service.
type Engine struct {
	svc      Service
	journal  Journal
	recorder Recorder
	config   Config
	logger   *slog.Logger
}

// New creates an Engine. recorder may be nil.
func New(svc Service, journal Journal, recorder Recorder, config Config, logger *slog.Logger) *Engine {
	logger = logging.OrDiscard(logger)
	return &Engine{
		svc:      svc,
		journal:  journal,
		recorder: recorder,
		config:   config,
		logger:   logger.With("component", "engine"),
	}
}

// Submit creates one remote job and returns its id without waiting.
func (e *Engine) Submit(ctx context.Context, toolID, historyID string, inputs map[string]any) (string, error) {
	return e.svc.Submit(ctx, toolID, historyID, inputs)
}

// Poll checks the job state until it leaves the pending states and returns
// the state observed. Recoverable failures (connectivity and failure
// responses other than auth and 404) are retried after RetryInterval without
// limit; other errors are returned.
func (e *Engine) Poll(ctx context.Context, jobID string) (galaxy.JobState, error) {
	if e.config.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.PollTimeout)
		defer cancel()
	}
	for {
		state, err := e.svc.JobState(ctx, jobID)
		wait := e.config.PollInterval
		switch {
		case err == nil && !state.IsPending():
			return state, nil
		case err != nil && galaxy.IsRecoverable(err):
			metrics.TransportRetry("poll")
			e.logger.Warn("job state check failed, retrying", "job_id", jobID, "error", err)
			wait = e.config.RetryInterval
		case err != nil:
			if ctxErr := pollErr(ctx); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("poll job %s: %w", jobID, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return "", pollErr(ctx)
		}
	}
}

func pollErr(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrPollTimeout, ctx.Err())
	default:
		return ctx.Err()
	}
}

// RunCombination merges, submits and polls one combination, journaling a
// failure. It is the single-shot path; batches go through RunBatch.
func (e *Engine) RunCombination(ctx context.Context, task *Task, index int, c combo.Combination) (*Outcome, error) {
	out := e.submit(ctx, task, index, c)
	if out.Rejected() {
		return out, nil
	}
	if err := e.finish(ctx, task, out); err != nil {
		return out, err
	}
	return out, nil
}

// RunBatch submits every combination first, then polls the jobs in
// submission order. A rejected submission is journaled and does not stop the
// batch. The returned error is non-nil only when ctx ends.
func (e *Engine) RunBatch(ctx context.Context, task *Task, combos []combo.Combination) ([]*Outcome, error) {
	log := e.logger.With("tool_id", task.ToolID)
	log.Info("running combinations", "tool", task.journalName(), "total", len(combos))

	outcomes := make([]*Outcome, 0, len(combos))
	for i, c := range combos {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, e.submit(ctx, task, i, c))
	}

	for _, out := range outcomes {
		if out.Rejected() {
			continue
		}
		if err := e.finish(ctx, task, out); err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			log.Warn("job not followed to completion", "job_id", out.JobID, "error", err)
		}
	}

	s := Summarize(outcomes)
	log.Info("combinations finished",
		"tool", task.journalName(),
		"total", s.Total,
		"ok", s.OK,
		"error", s.Failed,
		"rejected", s.Rejected,
		"other", s.Other,
	)
	return outcomes, nil
}

// submit merges c into the task's base state and submits it. Rejections,
// including a merged state that lost part of the template, are journaled.
func (e *Engine) submit(ctx context.Context, task *Task, index int, c combo.Combination) *Outcome {
	out := &Outcome{Index: index, Combination: c}

	merged, unmatched := inputstate.Merge(task.Base, c)
	if len(unmatched) > 0 {
		e.logger.Debug("combination keys absent from base state", "tool_id", task.ToolID, "keys", unmatched)
	}
	input, _ := merged.Value().(map[string]any)
	if input == nil {
		input = map[string]any{}
	}
	out.input = input
	out.record = &model.JobRecord{
		ID:          uuid.NewString(),
		RunID:       task.RunID,
		ToolID:      task.ToolID,
		Combination: index,
		Input:       input,
		SubmittedAt: time.Now().UTC(),
	}

	if err := verify(task.Base, merged); err != nil {
		out.Err = err
		e.reject(ctx, task, out)
		return out
	}

	jobID, err := e.Submit(ctx, task.ToolID, task.HistoryID, input)
	if err != nil {
		out.Err = err
		if ctx.Err() == nil {
			e.reject(ctx, task, out)
		}
		return out
	}
	out.JobID = jobID
	out.started = time.Now()
	out.record.JobID = jobID
	out.record.Outcome = model.JobOutcomeSubmitted
	metrics.JobOutcome(task.ToolID, "submitted")
	e.create(ctx, out.record)
	e.logger.Debug("job submitted", "tool_id", task.ToolID, "job_id", jobID, "combination", index)
	return out
}

// verify fails when merged no longer provides every leaf of template.
func verify(template, merged inputstate.Node) error {
	if template == nil {
		return nil
	}
	missing := inputstate.MissingPaths(template, merged)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, p := range missing {
		names[i] = p.String()
	}
	return fmt.Errorf("merged input is missing %s", strings.Join(names, ", "))
}

func (e *Engine) reject(ctx context.Context, task *Task, out *Outcome) {
	e.logger.Warn("submission rejected", "tool_id", task.ToolID, "combination", out.Index, "error", out.Err)
	metrics.JobOutcome(task.ToolID, "rejected")
	out.record.Outcome = model.JobOutcomeRejected
	out.record.Error = out.Err.Error()
	now := time.Now().UTC()
	out.record.CompletedAt = &now
	e.create(ctx, out.record)
	e.record(task, out.input, out.Err.Error())
}

// finish polls a submitted job and journals an error state.
func (e *Engine) finish(ctx context.Context, task *Task, out *Outcome) error {
	state, err := e.Poll(ctx, out.JobID)
	if err != nil {
		out.Err = err
		return err
	}
	out.State = state
	metrics.JobOutcome(task.ToolID, string(state))
	metrics.PollDuration(task.ToolID, time.Since(out.started).Seconds())
	e.logger.Info("job finished", "tool_id", task.ToolID, "job_id", out.JobID, "state", state)

	now := time.Now().UTC()
	out.record.CompletedAt = &now
	out.record.Outcome = outcomeFor(state)
	if state == galaxy.StateError {
		out.record.Error = MsgJobError
		e.record(task, out.input, MsgJobError)
	}
	if e.recorder != nil {
		if err := e.recorder.UpdateJob(ctx, out.record); err != nil {
			e.logger.Error("update job record", "job_id", out.JobID, "error", err)
		}
	}
	return nil
}

func (e *Engine) create(ctx context.Context, rec *model.JobRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.CreateJob(ctx, rec); err != nil {
		e.logger.Error("create job record", "tool_id", rec.ToolID, "error", err)
	}
}

func (e *Engine) record(task *Task, input map[string]any, message string) {
	if e.journal == nil {
		return
	}
	entry := inputstate.Normalize(inputstate.FromMap(input), e.config.Placeholders).Value()
	added, err := e.journal.Record(task.journalName(), entry, message)
	if err != nil {
		e.logger.Error("journal write failed", "tool", task.journalName(), "error", err)
		return
	}
	if added {
		metrics.JournalEntry(task.ToolID)
	}
}

func outcomeFor(state galaxy.JobState) model.JobOutcome {
	switch state {
	case galaxy.StateOK:
		return model.JobOutcomeOK
	case galaxy.StateError:
		return model.JobOutcomeError
	case galaxy.StatePaused:
		return model.JobOutcomePaused
	default:
		return model.JobOutcomeError
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
