package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Unicorn/Radium-sub010/internal/agentdef"
	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/orchestrator"
	"github.com/Unicorn/Radium-sub010/internal/session"
	"github.com/Unicorn/Radium-sub010/internal/source"
	"github.com/Unicorn/Radium-sub010/internal/storage"
	"github.com/Unicorn/Radium-sub010/internal/workflow"
)

// Server answers every method in SupportedMethods by driving the
// components it wraps: a turn per send_session_message, a workflow run
// per execute_workflow, the session store for listing/attaching, the
// source registry for validate_sources. It holds no session state of
// its own beyond the in-flight turn cancellation handles a client needs
// for cancel_session_turn.
type Server struct {
	Sessions      *session.Store
	Events        *event.Bus
	Orchestrator  *orchestrator.Orchestrator
	Engine        *workflow.Engine
	WorkflowStore *storage.WorkflowStore
	Agents        map[string]agentdef.Definition
	Sources       *source.Registry
	Logger        *slog.Logger
	StartedAt     time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc // sessionID -> cancel for its in-flight turn
}

// NewServer wires the RPC surface to the components it drives. agents is
// the set of agent definitions discovered at startup (internal/agentdef
// Discover), held statically since agent definitions don't change
// mid-process.
func NewServer(sessions *session.Store, events *event.Bus, orc *orchestrator.Orchestrator, engine *workflow.Engine, workflows *storage.WorkflowStore, agents map[string]agentdef.Definition, sources *source.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Sessions: sessions, Events: events, Orchestrator: orc, Engine: engine,
		WorkflowStore: workflows, Agents: agents, Sources: sources, Logger: logger,
		StartedAt: time.Now(), active: map[string]context.CancelFunc{},
	}
}

func (s *Server) logger() *slog.Logger { return s.Logger }

func (c *conn) dispatch(frame *Frame) error {
	switch frame.Method {
	case "health":
		return c.sendResponse(frame.ID, true, map[string]any{
			"status":   "ok",
			"uptimeMs": time.Since(c.server.StartedAt).Milliseconds(),
		}, nil)
	case "ping":
		return c.sendResponse(frame.ID, true, map[string]any{"timestamp": time.Now().UnixMilli()}, nil)
	case "create_session":
		return c.handleCreateSession(frame)
	case "list_sessions":
		return c.handleListSessions(frame)
	case "attach_session":
		return c.handleAttachSession(frame)
	case "send_session_message":
		return c.handleSendSessionMessage(frame)
	case "cancel_session_turn":
		return c.handleCancelSessionTurn(frame)
	case "list_agents":
		return c.handleListAgents(frame)
	case "list_workflows":
		return c.handleListWorkflows(frame)
	case "list_tasks":
		return c.handleListTasks(frame)
	case "execute_workflow":
		return c.handleExecuteWorkflow(frame)
	case "validate_sources":
		return c.handleValidateSources(frame)
	default:
		return fmt.Errorf("unknown method %q", frame.Method)
	}
}

type createSessionParams struct {
	AgentID string `json:"agentId"`
}

func (c *conn) handleCreateSession(frame *Frame) error {
	var params createSessionParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	if _, ok := c.server.Agents[params.AgentID]; !ok {
		return fmt.Errorf("unknown agent %q", params.AgentID)
	}
	sess, err := c.server.Sessions.Create(params.AgentID, c.server.workspaceRootFor(params.AgentID))
	if err != nil {
		return err
	}
	return c.sendResponse(frame.ID, true, map[string]any{"sessionId": sess.ID, "state": sess.State}, nil)
}

// workspaceRootFor returns the root a new session should record. Every
// session in one process shares the server's workspace, so this simply
// threads through the root the engine itself already resolved.
func (s *Server) workspaceRootFor(_ string) string {
	if s.Engine != nil {
		return s.Engine.WorkspaceRoot
	}
	return ""
}

type listSessionsParams struct {
	AgentID string `json:"agentId"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

func (c *conn) handleListSessions(frame *Frame) error {
	var params listSessionsParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return err
		}
	}
	list, err := c.server.Sessions.List(session.ListOptions{AgentID: params.AgentID, Limit: params.Limit, Offset: params.Offset})
	if err != nil {
		return err
	}
	summaries := make([]map[string]any, 0, len(list))
	for _, sess := range list {
		summaries = append(summaries, map[string]any{
			"sessionId": sess.ID, "agentId": sess.AgentID, "state": sess.State,
			"createdAt": sess.CreatedAt, "messageCount": len(sess.Messages),
		})
	}
	return c.sendResponse(frame.ID, true, map[string]any{"sessions": summaries}, nil)
}

type attachSessionParams struct {
	SessionID string `json:"sessionId"`
}

func (c *conn) handleAttachSession(frame *Frame) error {
	var params attachSessionParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	sess, err := c.server.Sessions.Attach(params.SessionID)
	if err != nil {
		return err
	}

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	events, unsubscribe := c.server.Events.Subscribe(params.SessionID, c.id)
	c.unsubscribe = unsubscribe
	go c.forwardEvents(events)

	return c.sendResponse(frame.ID, true, map[string]any{
		"sessionId": sess.ID, "agentId": sess.AgentID, "state": sess.State,
		"messages": sess.Messages, "toolCalls": sess.ToolCalls,
	}, nil)
}

// forwardEvents relays a subscribed session's event stream as pushed
// "event" frames until the bus closes the channel (session unsubscribed
// or superseded by a later attach_session on this connection).
func (c *conn) forwardEvents(events <-chan event.Event) {
	for ev := range events {
		_ = c.sendEvent(string(ev.Kind), ev)
	}
}

type sendSessionMessageParams struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

func (c *conn) handleSendSessionMessage(frame *Frame) error {
	var params sendSessionMessageParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	if strings.TrimSpace(params.Content) == "" {
		return fmt.Errorf("content is required")
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	c.server.mu.Lock()
	c.server.active[params.SessionID] = cancel
	c.server.mu.Unlock()

	go func() {
		defer func() {
			c.server.mu.Lock()
			delete(c.server.active, params.SessionID)
			c.server.mu.Unlock()
			cancel()
		}()
		if _, err := c.server.Orchestrator.RunTurn(turnCtx, orchestrator.TurnRequest{
			SessionID: params.SessionID, UserMessage: params.Content,
		}); err != nil {
			c.server.logger().Error("rpc: turn failed", "session", params.SessionID, "error", err)
		}
	}()

	return c.sendResponse(frame.ID, true, map[string]any{"status": "accepted"}, nil)
}

type cancelSessionTurnParams struct {
	SessionID string `json:"sessionId"`
}

func (c *conn) handleCancelSessionTurn(frame *Frame) error {
	var params cancelSessionTurnParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	c.server.mu.Lock()
	cancel, ok := c.server.active[params.SessionID]
	c.server.mu.Unlock()
	if ok {
		cancel()
	}
	return c.sendResponse(frame.ID, true, map[string]any{"cancelled": ok}, nil)
}

func (c *conn) handleListAgents(frame *Frame) error {
	out := make([]map[string]any, 0, len(c.server.Agents))
	for _, def := range c.server.Agents {
		out = append(out, map[string]any{
			"id": def.ID, "name": def.Name, "description": def.Description,
			"engine": def.Engine, "model": def.Model, "category": def.Category,
		})
	}
	return c.sendResponse(frame.ID, true, map[string]any{"agents": out}, nil)
}

func (c *conn) handleListWorkflows(frame *Frame) error {
	if c.server.WorkflowStore == nil {
		return fmt.Errorf("workflow store unavailable")
	}
	records, err := c.server.WorkflowStore.List(c.ctx)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id": rec.ID, "name": rec.Name, "state": rec.State,
			"createdAt": rec.CreatedAt, "updatedAt": rec.UpdatedAt,
		})
	}
	return c.sendResponse(frame.ID, true, map[string]any{"workflows": out}, nil)
}

type listTasksParams struct {
	WorkflowID string `json:"workflowId"`
}

func (c *conn) handleListTasks(frame *Frame) error {
	if c.server.WorkflowStore == nil {
		return fmt.Errorf("workflow store unavailable")
	}
	var params listTasksParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	tasks, err := c.server.WorkflowStore.TasksForWorkflow(c.ctx, params.WorkflowID)
	if err != nil {
		return err
	}
	return c.sendResponse(frame.ID, true, map[string]any{"tasks": tasks}, nil)
}

type executeWorkflowStepParams struct {
	AgentID string          `json:"agentId"`
	Input   json.RawMessage `json:"input"`
}

type executeWorkflowParams struct {
	Name            string                      `json:"name"`
	Steps           []executeWorkflowStepParams `json:"steps"`
	AutonomousTools []string                    `json:"autonomousTools"`
}

func (c *conn) handleExecuteWorkflow(frame *Frame) error {
	var params executeWorkflowParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	if c.server.Engine == nil {
		return fmt.Errorf("workflow engine unavailable")
	}

	steps := make([]workflow.Step, 0, len(params.Steps))
	for _, s := range params.Steps {
		steps = append(steps, workflow.Step{AgentID: s.AgentID, Input: s.Input})
	}
	wf := workflow.NewWorkflow(params.Name, steps)

	var autonomous *workflow.AutonomousPolicy
	if len(params.AutonomousTools) > 0 {
		allowed := make(map[string]bool, len(params.AutonomousTools))
		for _, tool := range params.AutonomousTools {
			allowed[tool] = true
		}
		autonomous = &workflow.AutonomousPolicy{AllowedTools: allowed}
	}

	go func() {
		state, err := c.server.Engine.Run(context.Background(), wf, autonomous)
		if err != nil {
			c.server.logger().Error("rpc: workflow run failed", "workflow", wf.ID, "error", err)
			return
		}
		c.server.logger().Info("rpc: workflow run finished", "workflow", wf.ID, "state", state)
	}()

	return c.sendResponse(frame.ID, true, map[string]any{"workflowId": wf.ID, "status": "accepted"}, nil)
}

type validateSourcesParams struct {
	URIs []string `json:"uris"`
}

func (c *conn) handleValidateSources(frame *Frame) error {
	var params validateSourcesParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return err
	}
	if c.server.Sources == nil {
		return fmt.Errorf("source registry unavailable")
	}
	results := c.server.Sources.VerifyAll(c.ctx, params.URIs)
	out := make([]map[string]any, 0, len(results))
	for i, ok := range results {
		out = append(out, map[string]any{"uri": params.URIs[i], "accessible": ok})
	}
	return c.sendResponse(frame.ID, true, map[string]any{"results": out}, nil)
}
