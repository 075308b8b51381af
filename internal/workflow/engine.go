package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/hooks"
	"github.com/Unicorn/Radium-sub010/internal/orchestrator"
	"github.com/Unicorn/Radium-sub010/internal/session"
	"github.com/Unicorn/Radium-sub010/internal/storage"
)

// maxTriggerInsertions bounds how many trigger behaviors one workflow
// run may splice in, a backstop against a misbehaving agent wedging the
// engine into triggering itself forever.
const maxTriggerInsertions = 64

// Engine runs a Workflow's steps through the orchestrator in order,
// applying the behavior an agent leaves after each step and the
// failure/retry policy on each step error (§4.5).
type Engine struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *session.Store
	Events       *event.Bus
	Store        *storage.WorkflowStore
	Checkpoints  *CheckpointStore
	Hooks        *hooks.Registry // optional; fires Telemetry events per step outcome

	WorkspaceRoot string
	BehaviorFile  string // path the engine reads/deletes after each step
	FailurePolicy FailurePolicy
	LoopCap       int

	loops *LoopCounters
}

// NewEngine constructs an Engine with the default failure policy and a
// fresh set of loop counters.
func NewEngine(orc *orchestrator.Orchestrator, sessions *session.Store, events *event.Bus, store *storage.WorkflowStore, checkpoints *CheckpointStore, workspaceRoot string, loopCap int) *Engine {
	if loopCap <= 0 {
		loopCap = 2
	}
	return &Engine{
		Orchestrator:  orc,
		Sessions:      sessions,
		Events:        events,
		Store:         store,
		Checkpoints:   checkpoints,
		WorkspaceRoot: workspaceRoot,
		BehaviorFile:  filepath.Join(workspaceRoot, ".radium", "memory", "behavior.json"),
		FailurePolicy: DefaultFailurePolicy(),
		LoopCap:       loopCap,
		loops:         NewLoopCounters(),
	}
}

// Run executes wf from wf.NextIndex (0 on a fresh workflow, the
// checkpoint-resume point otherwise) until it stops, completes, fails,
// or pauses on a checkpoint.
func (e *Engine) Run(ctx context.Context, wf *Workflow, autonomous *AutonomousPolicy) (State, error) {
	wf.State = StateRunning
	e.persistWorkflow(ctx, wf)

	queue := append([]Step(nil), wf.Steps...)
	insertions := 0

	for i := wf.NextIndex; i < len(queue); {
		if err := ctx.Err(); err != nil {
			wf.State = StatePaused
			wf.NextIndex = i
			e.persistWorkflow(ctx, wf)
			return StatePaused, err
		}

		step := queue[i]
		outcome, behaviorErr := e.runStepWithRetry(ctx, wf.ID, i, step, autonomous)
		if behaviorErr != nil {
			wf.State = StateFailed
			wf.NextIndex = i
			e.persistWorkflow(ctx, wf)
			return StateFailed, behaviorErr
		}

		switch outcome.Action {
		case ActionStop:
			wf.State = StateCompleted
			wf.NextIndex = i + 1
			e.persistWorkflow(ctx, wf)
			e.Events.Emit(outcome.SessionID, event.KindDone, "", jsonMust(map[string]string{"reason": "stop"}))
			return StateCompleted, nil

		case ActionCheckpoint:
			sess, err := e.Sessions.Attach(outcome.SessionID)
			if err == nil {
				if _, cpErr := e.Checkpoints.Create(wf.ID, i, sess); cpErr != nil {
					return StateFailed, cpErr
				}
			}
			wf.State = StatePaused
			wf.NextIndex = i + 1
			e.persistWorkflow(ctx, wf)
			e.Events.Emit(outcome.SessionID, event.KindCheckpointRequired, "", jsonMust(map[string]any{"step_index": i}))
			return StatePaused, nil

		case ActionTrigger:
			insertions++
			if insertions > maxTriggerInsertions {
				wf.State = StateFailed
				return StateFailed, fmt.Errorf("workflow: exceeded %d trigger insertions", maxTriggerInsertions)
			}
			triggerStep := Step{AgentID: outcome.Behavior.TriggerAgentID, inserted: true}
			queue = append(queue[:i+1], append([]Step{triggerStep}, queue[i+1:]...)...)
			e.Events.Emit(outcome.SessionID, event.KindBehaviorTriggered, "", jsonMust(map[string]string{
				"trigger_agent_id": outcome.Behavior.TriggerAgentID, "reason": outcome.Behavior.Reason,
			}))
			i++

		case ActionLoop:
			target := 0
			if outcome.Behavior.TargetStepIndex != nil {
				target = *outcome.Behavior.TargetStepIndex
			}
			key := LoopKey{FromStepIndex: i, ToStepIndex: target}
			if target < 0 || target >= len(queue) || !e.loops.Allow(key, e.LoopCap) {
				// Cap exceeded (or an out-of-range target): the workflow
				// reports normal completion with reason=max_iterations
				// (§9 worked example 3), not a failure.
				wf.State = StateCompleted
				wf.NextIndex = i + 1
				e.persistWorkflow(ctx, wf)
				e.Events.Emit(outcome.SessionID, event.KindDone, "", jsonMust(map[string]string{"reason": "max_iterations"}))
				return StateCompleted, nil
			}
			e.Events.Emit(outcome.SessionID, event.KindBehaviorTriggered, "", jsonMust(map[string]any{
				"loop_from": i, "loop_to": target, "reason": outcome.Behavior.Reason,
			}))
			i = target

		default: // ActionContinue
			i++
		}

		wf.NextIndex = i
	}

	wf.State = StateCompleted
	e.persistWorkflow(ctx, wf)
	return StateCompleted, nil
}

// stepOutcome carries what happened after a step's turn completed
// successfully, including the behavior the agent requested.
type stepOutcome struct {
	SessionID string
	Output    string
	Action    Action
	Behavior  Behavior
}

// runStepWithRetry runs one step, retrying on Transient/AgentFailure
// classifications per FailurePolicy with exponential backoff, and
// returns a terminal error only once retries are exhausted or the
// classification isn't retryable (§4.5, §7).
func (e *Engine) runStepWithRetry(ctx context.Context, workflowID string, stepIndex int, step Step, autonomous *AutonomousPolicy) (stepOutcome, error) {
	history := FailureHistory{}
	taskID := fmt.Sprintf("%s-step-%d", workflowID, stepIndex)

	for attempt := 0; ; attempt++ {
		outcome, err := e.runStepOnce(ctx, workflowID, stepIndex, step, autonomous)
		if err == nil {
			e.persistTask(ctx, workflowID, taskID, stepIndex, step.AgentID, StepCompleted, history, "", outputHash(outcome.Output))
			e.emitStepTelemetry(ctx, workflowID, true)
			return outcome, nil
		}

		kind := orchestrator.Classify(err)
		if kind == orchestrator.KindUnknown {
			kind = ClassifyString(err.Error())
		}
		history.AddFailure(kind, err.Error())
		e.persistTask(ctx, workflowID, taskID, stepIndex, step.AgentID, StepFailed, history, "", "")
		e.emitStepTelemetry(ctx, workflowID, false)

		if !e.FailurePolicy.ShouldRetry(history, kind) {
			return stepOutcome{}, fmt.Errorf("workflow: step %d (%s) failed permanently: %w", stepIndex, step.AgentID, err)
		}

		delay := e.FailurePolicy.NextBackoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stepOutcome{}, ctx.Err()
		}
	}
}

// runStepOnce runs the agent step exactly once: a fresh child session,
// one orchestrator turn, then the behavior file the agent may have left.
func (e *Engine) runStepOnce(ctx context.Context, workflowID string, stepIndex int, step Step, autonomous *AutonomousPolicy) (stepOutcome, error) {
	sess, err := e.Sessions.Create(step.AgentID, e.WorkspaceRoot)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("workflow: create step session: %w", err)
	}

	stop := autonomous.Watch(ctx, e.Events, e.Orchestrator.Approvals, sess.ID)
	defer stop()

	stepCtx := orchestrator.WithSessionID(ctx, sess.ID)
	reason, runErr := e.Orchestrator.RunTurn(stepCtx, orchestrator.TurnRequest{
		SessionID: sess.ID, UserMessage: string(step.Input), PlanID: workflowID,
	})
	if runErr != nil {
		return stepOutcome{}, runErr
	}
	if reason == orchestrator.DoneMaxIterations {
		return stepOutcome{}, fmt.Errorf("workflow: step %d (%s) did not converge within the turn's iteration cap", stepIndex, step.AgentID)
	}

	behavior, err := ReadAndClear(e.BehaviorFile)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("workflow: read behavior file: %w", err)
	}

	output := lastAssistantText(e.Sessions, sess.ID)
	return stepOutcome{SessionID: sess.ID, Output: output, Action: behavior.Action, Behavior: behavior}, nil
}

// lastAssistantText returns the most recent assistant message body in a
// session, used to content-address the step's output (§3). A lookup
// failure just yields an empty hash rather than failing the step.
func lastAssistantText(sessions *session.Store, sessionID string) string {
	sess, err := sessions.Attach(sessionID)
	if err != nil {
		return ""
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == session.RoleAssistant {
			return sess.Messages[i].Content
		}
	}
	return ""
}

func (e *Engine) persistWorkflow(ctx context.Context, wf *Workflow) {
	if e.Store == nil {
		return
	}
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return
	}
	_ = e.Store.Upsert(ctx, storage.WorkflowRecord{
		ID: wf.ID, Name: wf.Name, State: string(wf.State), StepsJSON: string(stepsJSON),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
}

func (e *Engine) persistTask(ctx context.Context, workflowID, taskID string, stepIndex int, agentID string, status StepStatus, history FailureHistory, input, hash string) {
	if e.Store == nil {
		return
	}
	now := time.Now()
	failureJSON, _ := json.Marshal(history)
	_ = e.Store.UpsertTask(ctx, storage.TaskRecord{
		ID: taskID, WorkflowID: workflowID, StepIndex: stepIndex, AgentID: agentID,
		Input: input, Status: string(status), EndedAt: &now, OutputHash: hash, FailureHistory: string(failureJSON),
	})
}

// emitStepTelemetry raises a Telemetry hook event per step outcome, the
// same narrow decoupling the orchestrator uses for tool-call/model-call
// telemetry (§4.2): the engine knows nothing about where the counters
// end up.
func (e *Engine) emitStepTelemetry(ctx context.Context, workflowID string, completed bool) {
	if e.Hooks == nil {
		return
	}
	key := "workflow_step_failed"
	if completed {
		key = "workflow_step_completed"
	}
	e.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.Telemetry, SessionID: workflowID,
		Counters: map[string]float64{key: 1},
	})
}

func jsonMust(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// outputHash content-addresses a step's final output, stored alongside
// its record so two runs that produced byte-identical output are
// visibly comparable (§3).
func outputHash(output string) string {
	sum := sha256.Sum256([]byte(output))
	return hex.EncodeToString(sum[:])
}

// NewWorkflow builds a fresh Idle workflow with a random id.
func NewWorkflow(name string, steps []Step) *Workflow {
	return &Workflow{ID: uuid.NewString(), Name: name, State: StateIdle, Steps: steps}
}

// Resume reloads a paused workflow from its persisted record, restores
// its session from the most recent checkpoint (if any was taken), and
// continues Run from the step it paused on (§4.5: checkpoint resumes
// "only on an explicit external signal").
func (e *Engine) Resume(ctx context.Context, workflowID string) (State, error) {
	if e.Store == nil {
		return StateFailed, fmt.Errorf("workflow: resume requires a workflow store")
	}
	rec, err := e.Store.Get(ctx, workflowID)
	if err != nil {
		return StateFailed, fmt.Errorf("workflow: load workflow %s: %w", workflowID, err)
	}
	if State(rec.State) != StatePaused {
		return StateFailed, fmt.Errorf("workflow: %s is not paused (state=%s)", workflowID, rec.State)
	}

	var steps []Step
	if err := json.Unmarshal([]byte(rec.StepsJSON), &steps); err != nil {
		return StateFailed, fmt.Errorf("workflow: decode steps for %s: %w", workflowID, err)
	}

	wf := &Workflow{ID: rec.ID, Name: rec.Name, State: StatePaused, Steps: steps}

	if e.Checkpoints != nil {
		if checkpoints, err := e.Checkpoints.List(workflowID); err == nil && len(checkpoints) > 0 {
			latest := checkpoints[0]
			sess, err := Restore(latest)
			if err != nil {
				return StateFailed, fmt.Errorf("workflow: restore checkpoint %s: %w", latest.ID, err)
			}
			if err := e.Sessions.Restore(sess); err != nil {
				return StateFailed, fmt.Errorf("workflow: reinstate session %s: %w", sess.ID, err)
			}
			wf.NextIndex = latest.StepIndex + 1
		}
	}

	return e.Run(ctx, wf, nil)
}
