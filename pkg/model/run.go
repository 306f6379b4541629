package model

import "time"

// Run is one watch or probe session against a history.
type Run struct {
	ID          string     `json:"id"`
	HistoryID   string     `json:"history_id"`
	HistoryName string     `json:"history_name,omitempty"`
	State       RunState   `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ToolRun tracks one discovered tool within a Run.
type ToolRun struct {
	RunID        string    `json:"run_id"`
	ToolID       string    `json:"tool_id"`
	Name         string    `json:"name"`
	State        ToolState `json:"state"`
	Combinations int       `json:"combinations"`
	Failures     int       `json:"failures"`
	Reason       string    `json:"reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobRecord is one submitted (or rejected) combination.
type JobRecord struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	ToolID      string         `json:"tool_id"`
	JobID       string         `json:"job_id,omitempty"`
	Combination int            `json:"combination"`
	Input       map[string]any `json:"input"`
	Outcome     JobOutcome     `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
