package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/galaxyprobe/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Workers write concurrently; a single connection serializes them and
	// keeps an in-memory database shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, _ := time.Parse(time.RFC3339Nano, *s)
	return &t
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, history_id, history_name, state, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.HistoryID, run.HistoryName, string(run.State),
		formatTime(run.CreatedAt), formatTimePtr(run.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	var run model.Run
	var state, createdAt string
	var completedAt *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, history_id, history_name, state, created_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.HistoryID, &run.HistoryName, &state, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.CompletedAt = parseTimePtr(completedAt)
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts = opts.Bounded(model.MaxRunPageSize)

	whereSQL := ""
	var countArgs []any
	if opts.State != "" {
		whereSQL = " WHERE state = ?"
		countArgs = append(countArgs, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, history_id, history_name, state, created_at, completed_at
		FROM runs` + whereSQL + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var run model.Run
		var state, createdAt string
		var completedAt *string
		if err := rows.Scan(&run.ID, &run.HistoryID, &run.HistoryName, &state, &createdAt, &completedAt); err != nil {
			return nil, 0, err
		}
		run.State = model.RunState(state)
		run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		run.CompletedAt = parseTimePtr(completedAt)
		runs = append(runs, &run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, completed_at = ? WHERE id = ?`,
		string(run.State), formatTimePtr(run.CompletedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// --- Tools ---

func (s *SQLiteStore) UpsertTool(ctx context.Context, tool *model.ToolRun) error {
	s.logger.Debug("sql", "op", "upsert", "table", "tools", "run_id", tool.RunID, "tool_id", tool.ToolID, "state", tool.State)

	if tool.UpdatedAt.IsZero() {
		tool.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (run_id, tool_id, name, state, combinations, failures, reason, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, tool_id) DO UPDATE SET
		   name = excluded.name,
		   state = excluded.state,
		   combinations = excluded.combinations,
		   failures = excluded.failures,
		   reason = excluded.reason,
		   updated_at = excluded.updated_at`,
		tool.RunID, tool.ToolID, tool.Name, string(tool.State),
		tool.Combinations, tool.Failures, tool.Reason, formatTime(tool.UpdatedAt),
	)
	return err
}

const toolColumns = `run_id, tool_id, name, state, combinations, failures, reason, updated_at`

func scanTool(row interface{ Scan(...any) error }) (*model.ToolRun, error) {
	var t model.ToolRun
	var state, updatedAt string
	if err := row.Scan(&t.RunID, &t.ToolID, &t.Name, &state, &t.Combinations, &t.Failures, &t.Reason, &updatedAt); err != nil {
		return nil, err
	}
	t.State = model.ToolState(state)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &t, nil
}

func (s *SQLiteStore) GetTool(ctx context.Context, runID, toolID string) (*model.ToolRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "tools", "run_id", runID, "tool_id", toolID)

	t, err := scanTool(s.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE run_id = ? AND tool_id = ?`, runID, toolID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) ListTools(ctx context.Context, runID string) ([]*model.ToolRun, error) {
	s.logger.Debug("sql", "op", "list", "table", "tools", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE run_id = ? ORDER BY updated_at, tool_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []*model.ToolRun
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.JobRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID, "tool_id", job.ToolID)

	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, run_id, tool_id, job_id, combination, input, outcome, error, submitted_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.RunID, job.ToolID, job.JobID, job.Combination, string(inputJSON),
		string(job.Outcome), job.Error, formatTime(job.SubmittedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.JobRecord) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "id", job.ID, "outcome", job.Outcome)

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET job_id = ?, outcome = ?, error = ?, completed_at = ? WHERE id = ?`,
		job.JobID, string(job.Outcome), job.Error, formatTimePtr(job.CompletedAt), job.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, runID string, opts model.ListOptions) ([]*model.JobRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts = opts.Bounded(model.MaxJobPageSize)

	whereClauses := []string{"run_id = ?"}
	countArgs := []any{runID}
	if opts.State != "" {
		whereClauses = append(whereClauses, "outcome = ?")
		countArgs = append(countArgs, opts.State)
	}
	if opts.ToolID != "" {
		whereClauses = append(whereClauses, "tool_id = ?")
		countArgs = append(countArgs, opts.ToolID)
	}
	whereSQL := " WHERE " + strings.Join(whereClauses, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, run_id, tool_id, job_id, combination, input, outcome, error, submitted_at, completed_at
		FROM jobs` + whereSQL + ` ORDER BY tool_id, combination LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.JobRecord
	for rows.Next() {
		var job model.JobRecord
		var inputJSON, outcome, submittedAt string
		var completedAt *string
		if err := rows.Scan(&job.ID, &job.RunID, &job.ToolID, &job.JobID, &job.Combination,
			&inputJSON, &outcome, &job.Error, &submittedAt, &completedAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal([]byte(inputJSON), &job.Input); err != nil {
			return nil, 0, fmt.Errorf("unmarshal input: %w", err)
		}
		job.Outcome = model.JobOutcome(outcome)
		job.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		job.CompletedAt = parseTimePtr(completedAt)
		jobs = append(jobs, &job)
	}
	return jobs, total, rows.Err()
}
