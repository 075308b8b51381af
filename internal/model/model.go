// Package model implements the uniform model interface (C12):
// generate_text / generate_chat over pluggable providers. Concrete wire
// formats are out of scope (§1); this package hosts the shape every
// provider implements and a small registry keyed by engine id.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// Role is a chat message's author, mirrored from internal/session's
// Role so providers never need to import the session package.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is fed back to the model as a tool-role message.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSpec describes one callable tool to the model, translated from
// internal/tools.Tool at the orchestrator boundary.
type ToolSpec struct {
	Name        string
	Description string
	SchemaJSON  string
}

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request carries everything generate_chat needs for one model call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int

	// ReasoningEffort maps an agent definition's low/medium/high setting
	// onto providers that support extended thinking (§3 Agent definition).
	ReasoningEffort string
}

// Chunk is one piece of a streamed generate_chat response.
type Chunk struct {
	Text         string
	ToolCall     *ToolCall
	Done         bool
	Err          error
	InputTokens  int
	OutputTokens int
}

// Response is the aggregate result of generate_text (non-streaming).
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// ErrNoProvider is returned when an orchestrator has no Model wired for
// the agent's configured engine.
var ErrNoProvider = errors.New("model: no provider configured")

// Model is the uniform interface every provider implementation
// satisfies. generate_text is Complete; generate_chat is Stream — both
// named in §2/§6, kept distinct because a provider may support only
// one (e.g. a provider with no streaming endpoint still answers
// Complete by draining its own internal stream).
type Model interface {
	// Name identifies the provider ("anthropic", "openai", ...).
	Name() string

	// SupportsTools reports whether tool-call requests are honored.
	SupportsTools() bool

	// Complete runs generate_text: one request, one response.
	Complete(ctx context.Context, req Request) (Response, error)

	// Stream runs generate_chat: the response arrives incrementally
	// over the returned channel, closed when generation finishes or
	// fails.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Registry maps an agent definition's engine id to a concrete Model.
type Registry struct {
	models map[string]Model
}

func NewRegistry() *Registry {
	return &Registry{models: map[string]Model{}}
}

func (r *Registry) Register(engineID string, m Model) {
	r.models[engineID] = m
}

func (r *Registry) Get(engineID string) (Model, error) {
	m, ok := r.models[engineID]
	if !ok {
		return nil, ErrNoProvider
	}
	return m, nil
}
