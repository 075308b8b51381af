package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Unicorn/Radium-sub010/internal/sandbox"
)

type terminalArgs struct {
	Command string   `json:"command" jsonschema:"required,description=Executable to run"`
	Args    []string `json:"args" jsonschema:"description=Arguments to the executable"`
	Dir     string    `json:"dir" jsonschema:"description=Working directory relative to the workspace root"`
}

// Terminal runs commands through the sandbox abstraction (C6) so policy
// and approval decisions apply uniformly regardless of sandbox variant.
type Terminal struct {
	Manager    *sandbox.Manager
	Config     sandbox.Config
	SandboxKey string
}

func (t Terminal) Register(reg *Registry) error {
	return reg.Register(Tool{
		Name:        "run_command",
		Description: "Run a command inside the session's sandbox.",
		SchemaJSON:  schemaFor(terminalArgs{}),
		Handler:     t.run,
	})
}

func (t Terminal) run(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args terminalArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if args.Command == "" {
		return Result{IsError: true, Content: "run_command: command is required"}, nil
	}
	if IsDryRun(ctx) {
		return Result{Content: fmt.Sprintf("dry run: would execute %q with args %v in sandbox %q", args.Command, args.Args, t.SandboxKey)}, nil
	}

	box, err := t.Manager.Get(ctx, t.SandboxKey, t.Config)
	if err != nil {
		return Result{IsError: true, Content: fmt.Sprintf("sandbox unavailable: %v", err)}, nil
	}

	res, err := box.Exec(ctx, sandbox.ExecRequest{Command: args.Command, Args: args.Args, Dir: args.Dir})
	if err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if res.ExitCode != 0 {
		return Result{IsError: true, Content: fmt.Sprintf("exit %d\nstdout: %s\nstderr: %s", res.ExitCode, res.Stdout, res.Stderr)}, nil
	}
	return Result{Content: res.Stdout}, nil
}
