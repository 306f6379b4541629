package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/me/galaxyprobe/internal/combo"
	"github.com/me/galaxyprobe/internal/engine"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/inputstate"
	"github.com/me/galaxyprobe/internal/logging"
	"github.com/me/galaxyprobe/internal/metrics"
	"github.com/me/galaxyprobe/internal/schema"
	"github.com/me/galaxyprobe/internal/tooldef"
	"github.com/me/galaxyprobe/pkg/model"
)

// ToolService describes a tool by id.
type ToolService interface {
	ShowTool(ctx context.Context, toolID string) (*galaxy.Tool, error)
}

// Runner executes a tool's combination matrix. *engine.Engine satisfies it.
type Runner interface {
	RunBatch(ctx context.Context, task *engine.Task, combos []combo.Combination) ([]*engine.Outcome, error)
}

// ToolRecorder persists tool lifecycle. *store.SQLiteStore satisfies it.
type ToolRecorder interface {
	UpsertTool(ctx context.Context, tool *model.ToolRun) error
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	RunID     string
	HistoryID string
	// MaxConcurrentTools bounds running workers. Zero means no bound.
	MaxConcurrentTools int
	// Filter prunes each tool's matrix before submission. May be nil.
	Filter *combo.Filter
}

// ToolResult is sent by a worker when its tool's matrix is done.
type ToolResult struct {
	ToolID       string          `json:"tool_id"`
	Name         string          `json:"name"`
	State        model.ToolState `json:"state"`
	Combinations int             `json:"combinations"`
	Summary      engine.Summary  `json:"summary"`
	Reason       string          `json:"reason,omitempty"`
	Err          error           `json:"-"`
}

// Scheduler claims first-seen tools and runs each in its own worker. The
// watcher's loop is the only caller of Dispatch; Wait joins every worker.
type Scheduler struct {
	tools    ToolService
	resolver tooldef.Resolver
	runner   Runner
	recorder ToolRecorder
	config   SchedulerConfig
	logger   *slog.Logger

	mu     sync.Mutex
	seen   map[string]bool
	states map[string]model.ToolState // last recorded state per tool

	group   errgroup.Group
	sem     *semaphore.Weighted
	results chan ToolResult
	done    chan struct{}
	// collected is written by the collector goroutine only.
	collected []ToolResult
	waitOnce  sync.Once
}

// NewScheduler creates a Scheduler and starts its result collector. recorder
// may be nil.
func NewScheduler(tools ToolService, resolver tooldef.Resolver, runner Runner, recorder ToolRecorder, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	logger = logging.OrDiscard(logger)
	s := &Scheduler{
		tools:    tools,
		resolver: resolver,
		runner:   runner,
		recorder: recorder,
		config:   config,
		logger:   logger.With("component", "scheduler", "run_id", config.RunID),
		seen:     make(map[string]bool),
		states:   make(map[string]model.ToolState),
		results:  make(chan ToolResult),
		done:     make(chan struct{}),
	}
	if config.MaxConcurrentTools > 0 {
		s.sem = semaphore.NewWeighted(int64(config.MaxConcurrentTools))
	}
	go s.collect()
	return s
}

// claim marks toolID as seen and reports whether this call was the first.
func (s *Scheduler) claim(toolID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[toolID] {
		return false
	}
	s.seen[toolID] = true
	return true
}

// Seen reports whether toolID has been claimed.
func (s *Scheduler) Seen(toolID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[toolID]
}

// Dispatch handles one resolved artifact. The first time a tool id is seen
// its definition is resolved; a tool with data-table parameters gets a
// worker running its matrix with the observed parameters as the base state.
// Dispatch does not wait for the worker. It reports whether a worker started.
func (s *Scheduler) Dispatch(ctx context.Context, prov *galaxy.Provenance) bool {
	if prov == nil || prov.ToolID == "" || prov.ToolID == galaxy.DataFetchToolID {
		return false
	}
	if !s.claim(prov.ToolID) {
		return false
	}
	log := logging.ForTool(s.logger, s.config.RunID, prov.ToolID)

	tool, err := s.tools.ShowTool(ctx, prov.ToolID)
	if err != nil {
		log.Warn("show tool failed, skipping", "error", err)
		metrics.ToolDiscovered("failed")
		s.upsert(ctx, &model.ToolRun{ToolID: prov.ToolID, Name: prov.ToolID, State: model.ToolStateFailed, Reason: err.Error()})
		return false
	}
	name := tool.DisplayName()
	s.upsert(ctx, &model.ToolRun{ToolID: prov.ToolID, Name: name, State: model.ToolStateDiscovered})

	def, err := s.resolver.Resolve(ctx, prov.ToolID)
	switch {
	case errors.Is(err, tooldef.ErrNoDataTables):
		log.Info("no data table parameters, skipping", "tool", name)
		metrics.ToolDiscovered("skipped")
		s.upsert(ctx, &model.ToolRun{ToolID: prov.ToolID, Name: name, State: model.ToolStateSkipped, Reason: err.Error()})
		return false
	case err != nil:
		log.Warn("resolve tool definition failed, skipping", "tool", name, "error", err)
		metrics.ToolDiscovered("failed")
		s.upsert(ctx, &model.ToolRun{ToolID: prov.ToolID, Name: name, State: model.ToolStateFailed, Reason: err.Error()})
		return false
	}

	metrics.ToolDiscovered("spawned")
	base := inputstate.FromMap(prov.Parameters)
	log.Info("spawning worker", "tool", name, "params", def.Params())
	s.group.Go(func() error {
		s.results <- s.run(ctx, log, prov.ToolID, tool, def, base)
		return nil
	})
	return true
}

// run mines, generates and executes one tool's matrix.
func (s *Scheduler) run(ctx context.Context, log *slog.Logger, toolID string, tool *galaxy.Tool, def *tooldef.Definition, base inputstate.Node) ToolResult {
	res := ToolResult{ToolID: toolID, Name: tool.DisplayName()}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			res.State, res.Err = model.ToolStateFailed, err
			return res
		}
		defer s.sem.Release(1)
	}
	metrics.WorkerStarted()
	defer metrics.WorkerDone()

	// No mined options still yields one combination: the base input as-is.
	opts, multi := schema.MineAll(tool.Doc, def.Params())
	combos, err := s.config.Filter.Apply(combo.Generate(opts, multi))
	if err != nil {
		res.State, res.Err = model.ToolStateFailed, err
		return res
	}
	res.Combinations = len(combos)
	metrics.Combinations(res.ToolID, len(combos))
	log.Info("combinations generated", "tool", res.Name, "total", len(combos), "multiple", multi, "filter", s.config.Filter.String())

	s.upsert(ctx, &model.ToolRun{ToolID: res.ToolID, Name: res.Name, State: model.ToolStateRunning, Combinations: len(combos)})
	task := &engine.Task{
		RunID:     s.config.RunID,
		ToolID:    res.ToolID,
		ToolName:  res.Name,
		HistoryID: s.config.HistoryID,
		Base:      base,
	}
	outcomes, err := s.runner.RunBatch(ctx, task, combos)
	res.Summary = engine.Summarize(outcomes)
	if err != nil {
		res.State, res.Err = model.ToolStateFailed, fmt.Errorf("run %s: %w", res.ToolID, err)
		return res
	}
	res.State = model.ToolStateDone
	return res
}

// collect drains worker results until Wait closes the channel.
func (s *Scheduler) collect() {
	defer close(s.done)
	for res := range s.results {
		s.collected = append(s.collected, res)
		tr := &model.ToolRun{
			ToolID:       res.ToolID,
			Name:         res.Name,
			State:        res.State,
			Combinations: res.Combinations,
			Failures:     res.Summary.Failures(),
			Reason:       res.Reason,
		}
		if res.Err != nil {
			tr.Reason = res.Err.Error()
			s.logger.Error("tool run failed", "tool_id", res.ToolID, "error", res.Err)
		} else {
			s.logger.Info("tool run finished",
				"tool_id", res.ToolID,
				"state", res.State,
				"combinations", res.Combinations,
				"failures", tr.Failures,
			)
		}
		s.upsert(context.Background(), tr)
	}
}

// Wait blocks until every worker has finished and returns their results in
// completion order. Dispatch must not be called after Wait.
func (s *Scheduler) Wait() []ToolResult {
	s.waitOnce.Do(func() {
		_ = s.group.Wait()
		close(s.results)
	})
	<-s.done
	return s.collected
}

// upsert records tr unless it would move the tool backwards.
func (s *Scheduler) upsert(ctx context.Context, tr *model.ToolRun) {
	if err := s.advance(tr.ToolID, tr.State); err != nil {
		s.logger.Error("record tool state", "tool_id", tr.ToolID, "error", err)
		return
	}
	if s.recorder == nil {
		return
	}
	tr.RunID = s.config.RunID
	tr.UpdatedAt = time.Now().UTC()
	if err := s.recorder.UpsertTool(ctx, tr); err != nil {
		s.logger.Error("record tool state", "tool_id", tr.ToolID, "error", err)
	}
}

func (s *Scheduler) advance(toolID string, next model.ToolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.states[toolID]; ok && !prev.CanTransitionTo(next) {
		return &model.InvalidTransitionError{Entity: "tool", ID: toolID, From: string(prev), To: string(next)}
	}
	s.states[toolID] = next
	return nil
}
