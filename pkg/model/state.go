package model

// RunState represents the lifecycle state of a probe Run.
type RunState string

const (
	RunStateRunning   RunState = "RUNNING"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
	RunStateCancelled RunState = "CANCELLED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// Valid reports whether s is a known run state.
func (s RunState) Valid() bool {
	switch s {
	case RunStateRunning, RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the run is in a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// ToolState represents what the watcher did with a discovered tool.
type ToolState string

const (
	ToolStateDiscovered ToolState = "DISCOVERED"
	ToolStateRunning    ToolState = "RUNNING"
	ToolStateDone       ToolState = "DONE"
	ToolStateSkipped    ToolState = "SKIPPED"
	ToolStateFailed     ToolState = "FAILED"
)

// String returns the string representation of the tool state.
func (s ToolState) String() string {
	return string(s)
}

// IsTerminal returns true if the tool is in a final state.
func (s ToolState) IsTerminal() bool {
	switch s {
	case ToolStateDone, ToolStateSkipped, ToolStateFailed:
		return true
	}
	return false
}

// ValidToolTransitions defines the allowed state transitions for tools.
var ValidToolTransitions = map[ToolState][]ToolState{
	ToolStateDiscovered: {ToolStateRunning, ToolStateSkipped, ToolStateFailed},
	ToolStateRunning:    {ToolStateDone, ToolStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ToolState) CanTransitionTo(next ToolState) bool {
	for _, allowed := range ValidToolTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobOutcome is the recorded result of one combination.
type JobOutcome string

const (
	// JobOutcomeSubmitted means the job was accepted and is being polled.
	JobOutcomeSubmitted JobOutcome = "SUBMITTED"
	// JobOutcomeRejected means the submission failed synchronously.
	JobOutcomeRejected JobOutcome = "REJECTED"
	JobOutcomeOK       JobOutcome = "OK"
	JobOutcomeError    JobOutcome = "ERROR"
	JobOutcomePaused   JobOutcome = "PAUSED"
)

// String returns the string representation of the outcome.
func (o JobOutcome) String() string {
	return string(o)
}

// Valid reports whether o is a known outcome.
func (o JobOutcome) Valid() bool {
	switch o {
	case JobOutcomeSubmitted, JobOutcomeRejected, JobOutcomeOK, JobOutcomeError, JobOutcomePaused:
		return true
	}
	return false
}
