// Package rpc implements the RPC surface (C17): a JSON-frame request/
// response protocol carried over a websocket connection, plus the event
// stream bridge that lets an attached client watch a session's turns
// and a workflow's steps as they happen.
//
// A single envelope type distinguishes a request ("req"), its response
// ("res"), and a pushed event ("event"); every frame carries an opaque
// correlation id the caller chose, and event frames additionally carry
// a per-connection sequence number.
package rpc

import "encoding/json"

// Frame is the envelope every message on the connection uses.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
	Seq     *int64          `json:"seq,omitempty"`
}

// FrameError is the error shape carried in a failed response frame.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SupportedMethods lists every request method this surface answers, the
// minimum set §6 names plus connect/health framing.
func SupportedMethods() []string {
	return []string{
		"connect",
		"health",
		"ping",
		"create_session",
		"list_sessions",
		"attach_session",
		"send_session_message",
		"cancel_session_turn",
		"list_agents",
		"list_workflows",
		"list_tasks",
		"execute_workflow",
		"validate_sources",
	}
}

// SupportedEvents lists every pushed event name, matching the event bus
// kinds one-for-one (§6) plus the connection-level tick/pong pair.
func SupportedEvents() []string {
	return []string{
		"tick",
		"pong",
		"UserInput",
		"AssistantMessage",
		"ToolCallRequested",
		"ToolCallStarted",
		"ToolCallFinished",
		"ApprovalRequired",
		"Error",
		"Done",
		"CheckpointRequired",
		"BehaviorTriggered",
	}
}
