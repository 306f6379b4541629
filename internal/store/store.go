package store

import (
	"context"

	"github.com/me/galaxyprobe/pkg/model"
)

// Store defines the persistence layer for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Tools within a run
	UpsertTool(ctx context.Context, tool *model.ToolRun) error
	GetTool(ctx context.Context, runID, toolID string) (*model.ToolRun, error)
	ListTools(ctx context.Context, runID string) ([]*model.ToolRun, error)

	// Jobs within a run
	CreateJob(ctx context.Context, job *model.JobRecord) error
	UpdateJob(ctx context.Context, job *model.JobRecord) error
	ListJobs(ctx context.Context, runID string, opts model.ListOptions) ([]*model.JobRecord, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
