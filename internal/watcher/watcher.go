// Package watcher follows a history until every artifact settles and hands
// each newly seen tool run to the scheduler.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/logging"
	"github.com/me/galaxyprobe/internal/metrics"
)

// Phase is the watcher's view of a history.
type Phase string

const (
	// PhasePending means the worklist has not been checked yet.
	PhasePending Phase = "pending"
	// PhaseDraining means a shrinking worklist is being re-checked.
	PhaseDraining Phase = "draining"
	// PhaseIdle means no unresolved artifacts remain.
	PhaseIdle Phase = "idle"
)

// Service is the part of the execution service the watcher calls.
type Service interface {
	ListArtifacts(ctx context.Context, historyID string) ([]galaxy.Artifact, error)
	DatasetState(ctx context.Context, datasetID string) (galaxy.JobState, error)
	Provenance(ctx context.Context, historyID, datasetID string) (*galaxy.Provenance, error)
}

// Dispatcher receives resolved artifacts. *Scheduler satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, prov *galaxy.Provenance) bool
}

// Config holds watcher timing.
type Config struct {
	// Interval is the wait between rounds while artifacts are unresolved.
	Interval time.Duration
	// Backoff is the wait after a transport failure before the worklist is
	// rebuilt.
	Backoff time.Duration
}

// DefaultConfig returns the intervals a history is normally watched with.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Backoff:  2 * time.Second,
	}
}

// Watcher drives the round loop for one history at a time.
type Watcher struct {
	svc        Service
	dispatcher Dispatcher
	config     Config
	logger     *slog.Logger
	phase      Phase
}

// New creates a Watcher.
func New(svc Service, dispatcher Dispatcher, config Config, logger *slog.Logger) *Watcher {
	logger = logging.OrDiscard(logger)
	return &Watcher{
		svc:        svc,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.With("component", "watcher"),
		phase:      PhaseIdle,
	}
}

// Phase returns the phase of the last round.
func (w *Watcher) Phase() Phase { return w.phase }

// Unresolved lists the history's visible file artifacts that are not ok.
func (w *Watcher) Unresolved(ctx context.Context, historyID string) ([]string, error) {
	items, err := w.svc.ListArtifacts(ctx, historyID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, it := range items {
		if it.Type == galaxy.ArtifactTypeFile && it.State != galaxy.StateOK {
			ids = append(ids, it.ID)
		}
	}
	return ids, nil
}

// Watch checks the history's unresolved artifacts round by round until none
// remain. An ok artifact is resolved through its provenance and dispatched;
// paused and errored artifacts are dropped; anything else is carried to the
// next round. A recoverable service failure rebuilds the worklist from the
// history after a backoff. Watch returns when the history is idle, when ctx
// ends, or on an unrecoverable error such as a missing history.
func (w *Watcher) Watch(ctx context.Context, historyID string) error {
	log := w.logger.With("history_id", historyID)

	worklist, err := w.rebuild(ctx, historyID)
	if err != nil {
		return err
	}
	w.phase = PhasePending
	round := 0
	for len(worklist) > 0 {
		round++
		metrics.Worklist(len(worklist))
		log.Info("checking artifacts", "round", round, "phase", w.phase, "unresolved", len(worklist))

		next, err := w.pass(ctx, historyID, worklist)
		switch {
		case err == nil:
			worklist = next
		case galaxy.IsRecoverable(err):
			metrics.TransportRetry("watch")
			log.Warn("service call failed, rebuilding worklist", "error", err, "backoff", w.config.Backoff)
			if err := sleep(ctx, w.config.Backoff); err != nil {
				return err
			}
			if worklist, err = w.rebuild(ctx, historyID); err != nil {
				return err
			}
			continue
		default:
			return err
		}

		w.phase = PhaseDraining
		if len(worklist) == 0 {
			break
		}
		if err := sleep(ctx, w.config.Interval); err != nil {
			return err
		}
	}
	w.phase = PhaseIdle
	metrics.Worklist(0)
	log.Info("history idle", "rounds", round)
	return nil
}

// pass checks every artifact in worklist once and returns the ids to carry.
func (w *Watcher) pass(ctx context.Context, historyID string, worklist []string) ([]string, error) {
	var carry []string
	for _, id := range worklist {
		state, err := w.svc.DatasetState(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", id, err)
		}
		switch state {
		case galaxy.StateOK:
			prov, err := w.svc.Provenance(ctx, historyID, id)
			if err != nil {
				return nil, fmt.Errorf("dataset %s: %w", id, err)
			}
			if prov.ToolID == galaxy.DataFetchToolID {
				continue
			}
			w.dispatcher.Dispatch(ctx, prov)
		case galaxy.StatePaused, galaxy.StateError:
			w.logger.Debug("artifact dropped", "dataset_id", id, "state", state)
		default:
			carry = append(carry, id)
		}
	}
	return carry, nil
}

// rebuild lists unresolved artifacts, waiting out recoverable failures.
func (w *Watcher) rebuild(ctx context.Context, historyID string) ([]string, error) {
	for {
		ids, err := w.Unresolved(ctx, historyID)
		if err == nil {
			return ids, nil
		}
		if !galaxy.IsRecoverable(err) {
			return nil, fmt.Errorf("list artifacts of %s: %w", historyID, err)
		}
		metrics.TransportRetry("watch")
		w.logger.Warn("listing artifacts failed, retrying", "history_id", historyID, "error", err)
		if err := sleep(ctx, w.config.Backoff); err != nil {
			return nil, err
		}
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
