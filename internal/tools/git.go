package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

type gitArgs struct {
	Args []string `json:"args" jsonschema:"required,description=Arguments passed to git, e.g. ['status','--short']"`
}

var allowedGitSubcommands = map[string]bool{
	"status": true, "diff": true, "log": true, "show": true,
	"add": true, "commit": true, "branch": true, "checkout": true,
	"restore": true, "stash": true, "blame": true,
}

// Git runs a constrained set of read/write git subcommands inside the
// workspace. It is registered under the tool name "git", so policy rules
// match it by that name, not as a run_command shell command.
type Git struct {
	Root string
}

func (g Git) Register(reg *Registry) error {
	return reg.Register(Tool{
		Name:        "git",
		Description: "Run a git subcommand (status, diff, log, show, add, commit, branch, checkout, restore, stash, blame) in the workspace.",
		SchemaJSON:  schemaFor(gitArgs{}),
		Handler:     g.run,
	})
}

func (g Git) run(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args gitArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{IsError: true, Content: err.Error()}, nil
	}
	if len(args.Args) == 0 {
		return Result{IsError: true, Content: "git: args is required"}, nil
	}
	if !allowedGitSubcommands[args.Args[0]] {
		return Result{IsError: true, Content: fmt.Sprintf("git: subcommand %q is not permitted", args.Args[0])}, nil
	}

	cmd := exec.CommandContext(ctx, "git", args.Args...)
	cmd.Dir = g.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{IsError: true, Content: strings.TrimSpace(stderr.String() + "\n" + err.Error())}, nil
	}
	return Result{Content: stdout.String()}, nil
}
