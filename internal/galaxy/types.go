package galaxy

import "slices"

// JobState is the lifecycle state of a job or dataset.
type JobState string

const (
	StateNew     JobState = "new"
	StateQueued  JobState = "queued"
	StateRunning JobState = "running"
	StateOK      JobState = "ok"
	StateError   JobState = "error"
	StatePaused  JobState = "paused"
)

// pendingStates are the states in which a job is still progressing.
var pendingStates = []JobState{StateNew, StateQueued, StateRunning}

// IsPending reports whether the state will still change.
func (s JobState) IsPending() bool {
	return slices.Contains(pendingStates, s)
}

// IsTerminal reports whether polling can stop. Paused counts as terminal.
func (s JobState) IsTerminal() bool {
	return s == StateOK || s == StateError || s == StatePaused
}

// History is a named collection of datasets.
type History struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Artifact is one entry of a history's contents.
type Artifact struct {
	ID    string   `json:"id"`
	HID   int      `json:"hid"`
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	State JobState `json:"state"`
}

// ArtifactTypeFile marks datasets, as opposed to collections.
const ArtifactTypeFile = "file"

// Job is the response of a job lookup.
type Job struct {
	ID     string   `json:"id"`
	ToolID string   `json:"tool_id"`
	State  JobState `json:"state"`
}

// Provenance describes the tool run that produced a dataset.
type Provenance struct {
	ToolID     string         `json:"tool_id"`
	Parameters map[string]any `json:"parameters"`
}

// Tool is a tool description as returned with io details. Doc holds the full
// decoded document for the schema miner.
type Tool struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Inputs  []any          `json:"inputs"`
	Doc     map[string]any `json:"-"`
}

// DisplayName returns the tool's name, or its id when unnamed.
func (t *Tool) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// DataFetchToolID is the upload tool. Its outputs are not tool runs.
const DataFetchToolID = "__DATA_FETCH__"
