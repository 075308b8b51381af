// Package hooks implements the priority-ordered, typed interception
// registry (C5): BeforeModel, AfterModel, BeforeTool, AfterTool, OnError,
// and Telemetry hook points.
package hooks

import "context"

// Type identifies which point in the orchestrator loop a hook fires at.
type Type string

const (
	BeforeModel Type = "before_model"
	AfterModel  Type = "after_model"
	BeforeTool  Type = "before_tool"
	AfterTool   Type = "after_tool"
	OnError     Type = "on_error"
	Telemetry   Type = "telemetry"
)

// Priority orders hooks within a Type; lower values fire earlier.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 25
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 75
	PriorityLowest  Priority = 100
)

// Event carries the mutable payload passed through a chain of hooks of
// one Type. Exactly one of the typed fields is meaningful per Type;
// Data/Result carry the interception point's before/after-state string
// so BeforeModel/AfterModel/BeforeTool/AfterTool can rewrite it.
type Event struct {
	Type      Type
	SessionID string
	ToolName  string
	Data      string // BeforeModel input / BeforeTool arguments JSON
	Result    string // AfterModel response / AfterTool result JSON
	ErrorKind string // OnError
	ErrorMsg  string // OnError
	Counters  map[string]float64
	Durations map[string]float64
}

// Outcome is a hook's effect on the chain.
type Outcome int

const (
	// Continue lets subsequent hooks of the same call run unchanged.
	Continue Outcome = iota
	// ReplaceData indicates Data or Result was rewritten; subsequent
	// hooks in this invocation see the modified value.
	ReplaceData
	// Stop aborts the invocation; the caller treats this as a veto.
	Stop
)

// Result is what a Handler returns.
type Result struct {
	Outcome Outcome
	Data    string // new Data, when Outcome == ReplaceData and this hook rewrote input
	Result  string // new Result, when Outcome == ReplaceData and this hook rewrote output
	Message string // veto explanation, when Outcome == Stop
	Err     error
}

// Handler is one registered hook's callable. Hooks are async by
// signature (ctx-aware) but execution within one Type is strictly
// sequential (§4.2): a long-running hook blocks the orchestrator by
// design.
type Handler func(ctx context.Context, event Event) Result
