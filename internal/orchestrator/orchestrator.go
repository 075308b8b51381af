// Package orchestrator implements the turn machine (C13): one user
// message in, a bounded number of model/tool round trips out, every
// suspension point (approval, hook veto, budget, provider failure)
// resolved through the narrow interfaces the other components expose.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Unicorn/Radium-sub010/internal/agentdef"
	ctxassembly "github.com/Unicorn/Radium-sub010/internal/context"
	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/hooks"
	"github.com/Unicorn/Radium-sub010/internal/memory"
	"github.com/Unicorn/Radium-sub010/internal/model"
	"github.com/Unicorn/Radium-sub010/internal/policy"
	"github.com/Unicorn/Radium-sub010/internal/session"
	"github.com/Unicorn/Radium-sub010/internal/tools"
	"github.com/Unicorn/Radium-sub010/internal/tracing"
)

// AgentResolver looks up an agent definition by id, the binding between
// a session's agent_id and the engine/model/prompt it should run with.
type AgentResolver interface {
	Resolve(agentID string) (agentdef.Definition, error)
}

// DoneReason explains why RunTurn returned.
type DoneReason string

const (
	DoneStop          DoneReason = "stop"
	DoneMaxIterations DoneReason = "max_iterations"
	DoneError         DoneReason = "error"
	DoneCancelled     DoneReason = "cancelled"
)

// doneEventPayload is emitted with event.KindDone.
type doneEventPayload struct {
	Reason DoneReason `json:"reason"`
	Error  string     `json:"error,omitempty"`
}

// TurnRequest starts one turn: a user message against a session.
type TurnRequest struct {
	SessionID   string
	UserMessage string
	PlanID      string
}

// Orchestrator wires every other component into the §4.4 loop. All
// fields are narrow interfaces or concrete components already built
// elsewhere; the orchestrator itself holds no persistent state beyond
// its configuration.
type Orchestrator struct {
	Sessions  *session.Store
	Policy    *policy.Resolver
	Approvals *policy.ApprovalManager
	Hooks     *hooks.Registry
	Context   *ctxassembly.Manager
	Memory    *memory.Store
	Events    *event.Bus
	Tools     *tools.Registry
	Models    *model.Registry
	Agents    AgentResolver
	Budget    BudgetChecker
	Tracer    trace.Tracer // optional; nil disables span creation

	Config Config
}

// New constructs an Orchestrator, sanitizing Config with defaults for
// any unset field.
func New(sessions *session.Store, pol *policy.Resolver, approvals *policy.ApprovalManager, hookReg *hooks.Registry, ctxMgr *ctxassembly.Manager, mem *memory.Store, events *event.Bus, toolReg *tools.Registry, models *model.Registry, agents AgentResolver, budget BudgetChecker, cfg Config) *Orchestrator {
	if budget == nil {
		budget = NewTokenBudget(0, 0.8) // unlimited by default
	}
	return &Orchestrator{
		Sessions: sessions, Policy: pol, Approvals: approvals, Hooks: hookReg,
		Context: ctxMgr, Memory: mem, Events: events, Tools: toolReg,
		Models: models, Agents: agents, Budget: budget, Config: sanitize(cfg),
	}
}

// RunTurn drives one user message through the loop described in §4.4:
// BeforeModel hook, context assembly, a model call, then — for every
// tool call the model requests — policy evaluation, possible approval
// suspension, BeforeTool/AfterTool hooks, execution, and feeding the
// result back, until the model answers without requesting a tool or
// the iteration cap is reached.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (reason DoneReason, err error) {
	correlationID := correlationFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = WithSessionID(ctx, req.SessionID)

	var span trace.Span
	ctx, span = tracing.StartTurn(ctx, o.Tracer, req.SessionID, correlationID)
	defer func() { tracing.EndWithError(span, err) }()

	sess, err := o.Sessions.Attach(req.SessionID)
	if err != nil {
		return DoneError, fmt.Errorf("orchestrator: attach session: %w", err)
	}

	def, err := o.Agents.Resolve(sess.AgentID)
	if err != nil {
		return DoneError, fmt.Errorf("orchestrator: resolve agent %q: %w", sess.AgentID, err)
	}

	userMessage := req.UserMessage
	beforeOutcome := o.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.BeforeModel, SessionID: req.SessionID, Data: userMessage,
	})
	if beforeOutcome.Stopped {
		o.emitError(req.SessionID, correlationID, "before_model hook vetoed turn: "+beforeOutcome.StopReason)
		return DoneStop, nil
	}
	if beforeOutcome.Data != "" {
		userMessage = beforeOutcome.Data
	}

	if err := o.Sessions.AppendMessage(req.SessionID, session.Message{Role: session.RoleUser, Content: userMessage}); err != nil {
		return DoneError, fmt.Errorf("orchestrator: append user message: %w", err)
	}
	o.Events.Emit(req.SessionID, event.KindUserInput, correlationID, jsonPayload(map[string]string{"content": userMessage}))

	promptTemplate, err := def.PromptTemplate()
	if err != nil {
		return DoneError, fmt.Errorf("orchestrator: load prompt template: %w", err)
	}

	maxTokens := o.Config.DefaultMaxTokens

	for iteration := 0; iteration < o.Config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return DoneCancelled, nil
		}

		prompt, err := o.Context.Assemble(ctx, ctxassembly.Request{
			Template:      promptTemplate,
			Variables:     map[string]string{"user_input": userMessage},
			SessionID:     req.SessionID,
			PlanID:        req.PlanID,
			AgentTag:      def.ID,
			WorkspaceRoot: sess.WorkspaceRoot,
		})
		if err != nil {
			return DoneError, fmt.Errorf("orchestrator: assemble context: %w", err)
		}

		mdl, err := o.Models.Get(def.Engine)
		if err != nil {
			o.emitError(req.SessionID, correlationID, err.Error())
			return DoneError, err
		}

		sess, err = o.Sessions.Attach(req.SessionID)
		if err != nil {
			return DoneError, fmt.Errorf("orchestrator: reattach session: %w", err)
		}

		if err := o.Budget.Estimate(ctx, req.SessionID, estimateTokens(prompt)); err != nil {
			o.emitError(req.SessionID, correlationID, err.Error())
			return DoneError, err
		}

		modelCallStart := time.Now()
		resp, err := mdl.Complete(ctx, model.Request{
			Model:           def.Model,
			System:          prompt,
			Messages:        buildModelMessages(sess),
			Tools:           o.toolSpecs(),
			MaxTokens:       maxTokens,
			ReasoningEffort: def.ReasoningEffort,
		})
		modelCallMS := float64(time.Since(modelCallStart).Milliseconds())
		if err != nil {
			kind := Classify(err)
			o.runOnError(ctx, req.SessionID, kind, err)
			o.Hooks.Execute(ctx, hooks.Event{
				Type: hooks.Telemetry, SessionID: req.SessionID,
				Counters:  map[string]float64{"model_requests_total": 1, "model_requests_error": 1},
				Durations: map[string]float64{"model_request_duration_ms": modelCallMS},
			})
			if kind == KindFatal {
				_ = o.Sessions.UpdateState(req.SessionID, session.StateFailed)
			}
			return DoneError, err
		}
		o.Hooks.Execute(ctx, hooks.Event{
			Type: hooks.Telemetry, SessionID: req.SessionID,
			Counters: map[string]float64{
				"model_requests_total": 1,
				"model_input_tokens":   float64(resp.InputTokens),
				"model_output_tokens":  float64(resp.OutputTokens),
			},
			Durations: map[string]float64{"model_request_duration_ms": modelCallMS},
		})

		if warn := o.Budget.Record(ctx, req.SessionID, resp.InputTokens+resp.OutputTokens); warn {
			o.Hooks.Execute(ctx, hooks.Event{
				Type: hooks.Telemetry, SessionID: req.SessionID,
				Counters: map[string]float64{"budget_warning": 1},
			})
		}

		afterOutcome := o.Hooks.Execute(ctx, hooks.Event{
			Type: hooks.AfterModel, SessionID: req.SessionID, Result: resp.Text,
		})
		if afterOutcome.Stopped {
			o.emitError(req.SessionID, correlationID, "after_model hook vetoed turn: "+afterOutcome.StopReason)
			return DoneStop, nil
		}
		if afterOutcome.Result != "" {
			resp.Text = afterOutcome.Result
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text != "" {
				if err := o.Sessions.AppendMessage(req.SessionID, session.Message{Role: session.RoleAssistant, Content: resp.Text}); err != nil {
					return DoneError, fmt.Errorf("orchestrator: append assistant message: %w", err)
				}
				o.Events.Emit(req.SessionID, event.KindAssistantMessage, correlationID, jsonPayload(map[string]string{"content": resp.Text}))
			}
			if req.PlanID != "" {
				_ = o.Memory.Write(req.PlanID, def.ID, resp.Text)
			}
			o.Events.Emit(req.SessionID, event.KindDone, correlationID, jsonPayload(doneEventPayload{Reason: DoneStop}))
			return DoneStop, nil
		}

		if resp.Text != "" {
			if err := o.Sessions.AppendMessage(req.SessionID, session.Message{Role: session.RoleAssistant, Content: resp.Text}); err != nil {
				return DoneError, fmt.Errorf("orchestrator: append assistant message: %w", err)
			}
		}

		for _, tc := range resp.ToolCalls {
			o.handleToolCall(ctx, req.SessionID, correlationID, tc)
		}
	}

	o.Events.Emit(req.SessionID, event.KindDone, correlationID, jsonPayload(doneEventPayload{Reason: DoneMaxIterations}))
	return DoneMaxIterations, nil
}

// handleToolCall resolves policy for one model-requested tool call,
// suspends for approval when required, runs BeforeTool/AfterTool hooks
// around execution, and appends the terminal record to the session.
// Denials and execution errors are fed back to the model as a failed
// tool call rather than aborting the whole turn — §7's AgentFailure
// recovery happens on the next iteration, bounded by MaxIterations.
func (o *Orchestrator) handleToolCall(ctx context.Context, sessionID, correlationID string, tc model.ToolCall) {
	start := time.Now()
	var span trace.Span
	ctx, span = tracing.StartToolCall(ctx, o.Tracer, tc.Name)
	defer span.End()
	o.Events.Emit(sessionID, event.KindToolCallRequested, correlationID, jsonPayload(map[string]any{
		"tool": tc.Name, "arguments": tc.Arguments,
	}))

	canonicalName := tc.Name
	policyArgs := []string{string(tc.Arguments)}
	if tc.Name == "run_command" {
		var runArgs struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(tc.Arguments, &runArgs); err == nil && runArgs.Command != "" {
			cmd, rest := policy.ExtractShellCommand(runArgs.Command)
			canonicalName = policy.RunCommandToolName(cmd)
			policyArgs = rest
		}
	}

	decision := o.Policy.Evaluate(ctx, sessionID, canonicalName, policyArgs)

	switch decision.Action {
	case policy.Deny:
		o.failToolCall(ctx, sessionID, correlationID, tc, start, "denied by policy: "+decision.Reason)
		return
	case policy.AskUser:
		areq := o.Approvals.Create(sessionID, tc.Name, decision.Reason, o.Config.ApprovalTimeout)
		o.Events.Emit(sessionID, event.KindApprovalRequired, correlationID, jsonPayload(map[string]string{
			"approval_id": areq.ID, "tool": tc.Name, "reason": decision.Reason,
		}))
		if err := o.Approvals.Wait(ctx, areq); err != nil {
			o.failToolCall(ctx, sessionID, correlationID, tc, start, err.Error())
			return
		}
	case policy.DryRunFirst:
		// Run once in read-only mode to produce the diff the client
		// approves; nothing mutates until Approvals.Wait returns nil
		// and the real execution below runs (§4.4 step 4a).
		preview, previewErr := o.Tools.Execute(tools.WithDryRun(ctx), tc.Name, tc.Arguments)
		if previewErr != nil {
			o.failToolCall(ctx, sessionID, correlationID, tc, start, previewErr.Error())
			return
		}
		areq := o.Approvals.Create(sessionID, tc.Name, "dry_run_first: "+decision.Reason, o.Config.ApprovalTimeout)
		o.Events.Emit(sessionID, event.KindApprovalRequired, correlationID, jsonPayload(map[string]any{
			"approval_id": areq.ID, "tool": tc.Name, "preview": preview.Content,
		}))
		if err := o.Approvals.Wait(ctx, areq); err != nil {
			o.failToolCall(ctx, sessionID, correlationID, tc, start, err.Error())
			return
		}
		result, execErr := o.Tools.Execute(ctx, tc.Name, tc.Arguments)
		if execErr != nil {
			o.failToolCall(ctx, sessionID, correlationID, tc, start, execErr.Error())
			return
		}
		o.finishToolCall(ctx, sessionID, correlationID, tc, start, result)
		return
	case policy.Allow:
		// fall through to execution
	}

	beforeOutcome := o.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.BeforeTool, SessionID: sessionID, ToolName: tc.Name, Data: string(tc.Arguments),
	})
	args := tc.Arguments
	if beforeOutcome.Stopped {
		o.failToolCall(ctx, sessionID, correlationID, tc, start, "before_tool hook vetoed: "+beforeOutcome.StopReason)
		return
	}
	if beforeOutcome.Data != "" {
		args = json.RawMessage(beforeOutcome.Data)
	}

	result, err := o.Tools.Execute(ctx, tc.Name, args)
	if err != nil {
		o.failToolCall(ctx, sessionID, correlationID, tc, start, err.Error())
		return
	}

	afterOutcome := o.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.AfterTool, SessionID: sessionID, ToolName: tc.Name, Result: result.Content,
	})
	if afterOutcome.Result != "" {
		result.Content = afterOutcome.Result
	}

	o.finishToolCall(ctx, sessionID, correlationID, tc, start, result)
}

func (o *Orchestrator) finishToolCall(ctx context.Context, sessionID, correlationID string, tc model.ToolCall, start time.Time, result tools.Result) {
	duration := time.Since(start).Milliseconds()
	_ = o.Sessions.AppendToolCall(sessionID, session.ToolCall{
		ToolName: tc.Name, Arguments: tc.Arguments,
		Result: jsonString(result.Content), Success: !result.IsError,
		Error: errString(result.IsError, result.Content), DurationMS: duration,
	})
	o.Events.Emit(sessionID, event.KindToolCallFinished, correlationID, jsonPayload(map[string]any{
		"tool": tc.Name, "success": !result.IsError, "duration_ms": duration,
	}))
	o.emitToolTelemetry(ctx, sessionID, tc.Name, !result.IsError, duration)
}

func (o *Orchestrator) failToolCall(ctx context.Context, sessionID, correlationID string, tc model.ToolCall, start time.Time, reason string) {
	duration := time.Since(start).Milliseconds()
	_ = o.Sessions.AppendToolCall(sessionID, session.ToolCall{
		ToolName: tc.Name, Arguments: tc.Arguments,
		Success: false, Error: reason, DurationMS: duration,
	})
	o.Events.Emit(sessionID, event.KindToolCallFinished, correlationID, jsonPayload(map[string]any{
		"tool": tc.Name, "success": false, "error": reason, "duration_ms": duration,
	}))
	o.emitToolTelemetry(ctx, sessionID, tc.Name, false, duration)
}

// emitToolTelemetry raises a Telemetry hook event so subscribers (e.g. a
// metrics exporter) observe every tool call's outcome and latency
// without the orchestrator knowing anything about where that data ends
// up (§4.2 "Telemetry receives counters/durations and cannot change
// flow").
func (o *Orchestrator) emitToolTelemetry(ctx context.Context, sessionID, toolName string, success bool, durationMS int64) {
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	o.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.Telemetry, SessionID: sessionID, ToolName: toolName,
		Counters:  map[string]float64{"tool_calls_total": 1, "tool_calls_success": successVal},
		Durations: map[string]float64{"tool_call_duration_ms": float64(durationMS)},
	})
}

func (o *Orchestrator) runOnError(ctx context.Context, sessionID string, kind ErrorKind, err error) {
	o.Hooks.Execute(ctx, hooks.Event{
		Type: hooks.OnError, SessionID: sessionID, ErrorKind: string(kind), ErrorMsg: err.Error(),
	})
	o.emitError(sessionID, correlationFromContext(ctx), err.Error())
}

func (o *Orchestrator) emitError(sessionID, correlationID, msg string) {
	o.Events.Emit(sessionID, event.KindError, correlationID, jsonPayload(map[string]string{"message": msg}))
}

// SpawnAgent implements tools.Spawner: run a nested agent to completion
// in a fresh child session and return its final assistant message
// (§9 "Agent-graph composition"). Recursion is bounded by Config.MaxDepth.
func (o *Orchestrator) SpawnAgent(ctx context.Context, agentID, task, seedContext string) (string, error) {
	depth := depthFromContext(ctx)
	if depth >= o.Config.MaxDepth {
		return "", fmt.Errorf("orchestrator: max nested-agent depth %d exceeded", o.Config.MaxDepth)
	}

	if _, err := o.Agents.Resolve(agentID); err != nil {
		return "", fmt.Errorf("orchestrator: spawn_agent: %w", err)
	}

	parentCorrelation := correlationFromContext(ctx)
	childCorrelation := parentCorrelation
	if childCorrelation == "" {
		childCorrelation = uuid.NewString()
	}
	childCorrelation = childCorrelation + "/" + uuid.NewString()

	var workspaceRoot string
	if sessID := sessionIDFromSpawnContext(ctx); sessID != "" {
		if parent, err := o.Sessions.Attach(sessID); err == nil {
			workspaceRoot = parent.WorkspaceRoot
		}
	}

	child, err := o.Sessions.Create(agentID, workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("orchestrator: create nested session: %w", err)
	}

	childCtx := withDepth(ctx, depth+1)
	childCtx = withCorrelation(childCtx, childCorrelation)

	userMessage := task
	if seedContext != "" {
		userMessage = seedContext + "\n\n" + task
	}

	if _, err := o.RunTurn(childCtx, TurnRequest{SessionID: child.ID, UserMessage: userMessage}); err != nil {
		return "", fmt.Errorf("orchestrator: nested turn failed: %w", err)
	}

	final, err := o.Sessions.Attach(child.ID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: reattach nested session: %w", err)
	}
	for i := len(final.Messages) - 1; i >= 0; i-- {
		if final.Messages[i].Role == session.RoleAssistant {
			return final.Messages[i].Content, nil
		}
	}
	return "", nil
}

// sessionIDKeyType carries the active session id alongside depth so a
// nested SpawnAgent can inherit the parent's workspace root. RunTurn sets
// it for every turn it runs; the workflow engine also sets it on each
// step's context.
type sessionIDKeyType struct{}

var sessionIDKey sessionIDKeyType

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func sessionIDFromSpawnContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// toolSpecs translates the registered tools into model.ToolSpec so the
// request carries every tool name/schema the model may call.
func (o *Orchestrator) toolSpecs() []model.ToolSpec {
	names := o.Tools.Names()
	specs := make([]model.ToolSpec, 0, len(names))
	for _, name := range names {
		t, ok := o.Tools.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, model.ToolSpec{Name: t.Name, Description: t.Description, SchemaJSON: t.SchemaJSON})
	}
	return specs
}

// buildModelMessages flattens a session's append-only message and
// tool-call logs into the chronological model.Message slice a provider
// expects, merging tool calls in as tool-role messages carrying their
// terminal result.
func buildModelMessages(sess *session.Session) []model.Message {
	out := make([]model.Message, 0, len(sess.Messages)+len(sess.ToolCalls))
	msgs, calls := sess.Messages, sess.ToolCalls
	for len(msgs) > 0 || len(calls) > 0 {
		if len(msgs) > 0 && (len(calls) == 0 || !msgs[0].Timestamp.After(calls[0].Timestamp)) {
			m := msgs[0]
			msgs = msgs[1:]
			out = append(out, model.Message{Role: model.Role(m.Role), Content: m.Content})
			continue
		}
		tc := calls[0]
		calls = calls[1:]
		if !tc.IsTerminal() {
			continue
		}
		content := string(tc.Result)
		if tc.Error != "" {
			content = tc.Error
		}
		out = append(out, model.Message{
			Role: model.RoleTool,
			ToolResults: []model.ToolResult{{
				ToolCallID: tc.ID, Content: content, IsError: tc.Error != "",
			}},
		})
	}
	return out
}

// estimateTokens is a rough, provider-agnostic estimate used only for
// the pre-call budget check (§4.4): four characters per token.
func estimateTokens(s string) int {
	return len(s) / 4
}

func jsonPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// jsonString encodes a plain string as a JSON value, used to store a
// tool result's content alongside its structured arguments.
func jsonString(s string) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return b
}

func errString(isError bool, content string) string {
	if !isError {
		return ""
	}
	return content
}
