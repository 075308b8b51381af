package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type spawnAgentArgs struct {
	AgentID string `json:"agent_id" jsonschema:"required,description=ID of the agent definition to spawn"`
	Task    string `json:"task" jsonschema:"required,description=Task description handed to the nested agent"`
	Context string `json:"context" jsonschema:"description=Additional context to seed the nested agent's session"`
}

// Spawner runs a nested agent to completion and returns its final
// output. The orchestrator supplies the implementation so this package
// never imports internal/orchestrator directly (narrow interface at the
// package boundary, same pattern used across internal/context).
type Spawner interface {
	SpawnAgent(ctx context.Context, agentID, task, seedContext string) (string, error)
}

// NestedAgent exposes agent delegation as a tool call, grounded on
// nexus's handoff tool but synchronous rather than stack-based: the
// parent session blocks for the child's result instead of transferring
// control (spec §4: "nested-agent" tool under C11 Tool surface).
type NestedAgent struct {
	Spawner Spawner
}

func (n NestedAgent) Register(reg *Registry) error {
	return reg.Register(Tool{
		Name:        "spawn_agent",
		Description: "Delegate a task to another agent and wait for its result.",
		SchemaJSON:  schemaFor(spawnAgentArgs{}),
		Handler:     n.run,
	})
}

func (n NestedAgent) run(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args spawnAgentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if n.Spawner == nil {
		return Result{IsError: true, Content: "spawn_agent: no spawner configured"}, nil
	}

	output, err := n.Spawner.SpawnAgent(ctx, args.AgentID, args.Task, args.Context)
	if err != nil {
		return Result{IsError: true, Content: fmt.Sprintf("spawn_agent failed: %v", err)}, nil
	}
	return Result{Content: output}, nil
}
