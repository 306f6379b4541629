package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/me/galaxyprobe/internal/combo"
	"github.com/me/galaxyprobe/internal/engine"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/journal"
	"github.com/me/galaxyprobe/internal/store"
	"github.com/me/galaxyprobe/internal/tooldef"
	"github.com/me/galaxyprobe/internal/watcher"
	"github.com/me/galaxyprobe/pkg/model"
)

// app holds the collaborators shared by the watch and probe commands.
type app struct {
	client   *galaxy.Client
	journal  *journal.Journal
	store    *store.SQLiteStore // nil when the ledger is disabled
	resolver *tooldef.SourceResolver
	filter   *combo.Filter
	engine   *engine.Engine
}

// newApp wires the service client, journal, ledger, resolver and engine
// from the loaded configuration.
func newApp(ctx context.Context) (*app, error) {
	a := &app{
		client:  galaxy.NewClient(cfg.Galaxy(), logger),
		journal: journal.New(cfg.JournalDir, logger),
	}

	catalog := tooldef.NewCatalog()
	if cfg.CatalogPath != "" {
		c, err := tooldef.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	a.resolver = tooldef.NewSourceResolver(a.client, catalog, logger)

	filter, err := combo.NewFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	a.filter = filter

	var recorder engine.Recorder
	if cfg.DBPath != "" {
		st, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = st
		recorder = st
	}
	a.engine = engine.New(a.client, a.journal, recorder, cfg.Engine(), logger)
	return a, nil
}

// openStore opens and migrates the ledger, creating its directory.
func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// toolRecorder returns the ledger as a scheduler recorder, or nil.
func (a *app) toolRecorder() watcher.ToolRecorder {
	if a.store == nil {
		return nil
	}
	return a.store
}

// startRun records a new run against history h.
func (a *app) startRun(ctx context.Context, h *galaxy.History) *model.Run {
	run := &model.Run{
		ID:          "run_" + uuid.New().String(),
		HistoryID:   h.ID,
		HistoryName: h.Name,
		State:       model.RunStateRunning,
		CreatedAt:   time.Now().UTC(),
	}
	if a.store != nil {
		if err := a.store.CreateRun(ctx, run); err != nil {
			logger.Warn("record run failed", "run_id", run.ID, "error", err)
		}
	}
	return run
}

// finishRun marks run terminal. ctx may already be cancelled, so the update
// runs on a fresh context.
func (a *app) finishRun(run *model.Run, runErr error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	switch {
	case runErr == nil:
		run.State = model.RunStateCompleted
	case errors.Is(runErr, context.Canceled):
		run.State = model.RunStateCancelled
	default:
		run.State = model.RunStateFailed
	}
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.UpdateRun(ctx, run); err != nil {
		logger.Warn("record run failed", "run_id", run.ID, "error", err)
	}
}

// Close releases the ledger.
func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// connect waits for the service and resolves the working history. An
// explicit historyID skips name resolution.
func (a *app) connect(ctx context.Context, historyID string) (*galaxy.History, error) {
	version, err := a.client.WaitReachable(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.client.URL(), err)
	}
	logger.Info("connected", "url", a.client.URL(), "version", version)
	if historyID != "" {
		return &galaxy.History{ID: historyID}, nil
	}
	h, err := a.client.ResolveHistory(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("resolve history %q: %w", cfg.History, err)
	}
	return h, nil
}
