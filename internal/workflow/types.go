// Package workflow implements the workflow engine (C14): an ordered
// sequence of agent steps executed through the orchestrator, the three
// dynamic behaviors (loop, trigger, checkpoint) an agent can request
// between steps, and the failure classifier / retry controller that
// decides whether a failed step is retried or the workflow stops.
package workflow

import (
	"encoding/json"
	"time"
)

// State is a workflow's lifecycle state (§3).
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StepStatus is one step's execution status (§3).
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepBlocked   StepStatus = "blocked"
)

// Step references a task definition: which agent runs and what input
// it receives (§3: "each step references a task definition (agent id,
// input JSON)").
type Step struct {
	AgentID string          `json:"agent_id"`
	Input   json.RawMessage `json:"input"`

	// inserted marks a step spliced into the queue by a trigger
	// behavior rather than present in the original definition, kept so
	// Workflow.Steps (persisted) reflects only the authored sequence.
	inserted bool
}

// StepRecord is the persisted execution record for one step (§3: "start/
// end timestamps, model-output hash, and failure history").
type StepRecord struct {
	StepIndex  int
	AgentID    string
	Status     StepStatus
	StartedAt  *time.Time
	EndedAt    *time.Time
	OutputHash string
	Failures   FailureHistory
}

// Workflow is the full in-memory/persisted state of one workflow run.
type Workflow struct {
	ID      string
	Name    string
	State   State
	Steps   []Step
	Records []StepRecord

	// NextIndex is the step the engine resumes at — used by Resume
	// after a checkpoint pause.
	NextIndex int
}
