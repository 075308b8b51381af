package workflow

import (
	"errors"
	"os"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// Action is the dynamic control an agent requests between steps (§4.5,
// §6 "Workflow behavior file").
type Action string

const (
	ActionContinue  Action = "continue"
	ActionStop      Action = "stop"
	ActionLoop      Action = "loop"
	ActionTrigger   Action = "trigger"
	ActionCheckpoint Action = "checkpoint"
)

// Behavior is the JSON document an agent writes to steer the engine:
// `{action, reason, triggerAgentId?}`. TargetStepIndex is this
// implementation's extension for the worked loop example ("after B the
// behavior file says loop targeting A"): the minimal three-field schema
// names no explicit loop target, so a loop behavior with no
// TargetStepIndex set loops back to step 0, and one that sets it jumps
// there instead — giving agents a way to target a later anchor than the
// workflow's first step without widening the base JSON contract.
type Behavior struct {
	Action          Action `json:"action"`
	Reason          string `json:"reason"`
	TriggerAgentID  string `json:"triggerAgentId,omitempty"`
	TargetStepIndex *int   `json:"targetStepIndex,omitempty"`
}

// ErrMissingTriggerAgent is returned when a trigger behavior omits the
// required agent id.
var ErrMissingTriggerAgent = errors.New("workflow: trigger behavior missing triggerAgentId")

// ReadAndClear reads the behavior file at path, if present, and deletes
// it afterward (§6: "The engine reads then deletes this file after each
// step"). A missing file is not an error: it is the default continue
// behavior.
func ReadAndClear(path string) (Behavior, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Behavior{Action: ActionContinue}, nil
	}
	if err != nil {
		return Behavior{}, err
	}
	defer os.Remove(path)

	// Behavior files are hand-authored (or model-authored) JSON, not a
	// wire payload, so a trailing comma or an inline comment shouldn't
	// sink a whole workflow step — json5 parses the strict-JSON case
	// identically and tolerates both.
	var behavior Behavior
	if err := json5.Unmarshal(b, &behavior); err != nil {
		return Behavior{}, err
	}
	if behavior.Action == "" {
		behavior.Action = ActionContinue
	}
	if behavior.Action == ActionTrigger && behavior.TriggerAgentID == "" {
		return Behavior{}, ErrMissingTriggerAgent
	}
	return behavior, nil
}
