// Package policy implements the rule compiler and evaluator (C4): glob
// matching over tool names and arguments, grouped by priority Admin >
// User > Default, plus the approval-mode fallback and session-scoped
// constitution overlay.
package policy

import (
	"path"
	"strings"
	"time"
)

// Action is the outcome of evaluating a tool call against a rule set.
type Action string

const (
	Allow       Action = "allow"
	Deny        Action = "deny"
	AskUser     Action = "ask_user"
	DryRunFirst Action = "dry_run_first"
)

// Priority groups rules; within a group, definition order decides.
// Admin rules can never be overridden by User or Default (§3).
type Priority string

const (
	PriorityDefault Priority = "default"
	PriorityUser    Priority = "user"
	PriorityAdmin   Priority = "admin"
)

// priorityOrder is the strict evaluation order, highest precedence first.
var priorityOrder = []Priority{PriorityAdmin, PriorityUser, PriorityDefault}

// ApprovalMode is the process-wide fallback when no rule matches.
type ApprovalMode string

const (
	ModeYolo     ApprovalMode = "yolo"
	ModeAutoEdit ApprovalMode = "autoEdit"
	ModeAsk      ApprovalMode = "ask"
)

// Rule matches a tool-name glob and optional argument glob, and carries
// the action to take when matched.
type Rule struct {
	ID          string   `toml:"id"`
	ToolPattern string   `toml:"tool_pattern"`
	ArgPattern  string   `toml:"arg_pattern"`
	Action      Action   `toml:"action"`
	Priority    Priority `toml:"priority"`
	Reason      string   `toml:"reason"`
}

// Matches reports whether the rule applies to the given canonical tool
// name and argument list. Shell tools are matched on their command name
// (the caller is expected to have already reduced "rm -rf /" to "rm" via
// ExtractShellCommand before calling Evaluate with a run_command tool).
func (r Rule) Matches(toolName string, args []string) bool {
	if !matchGlob(r.ToolPattern, toolName) {
		return false
	}
	if r.ArgPattern == "" {
		return true
	}
	for _, a := range args {
		if matchGlob(r.ArgPattern, a) {
			return true
		}
	}
	return false
}

// matchGlob supports path.Match-style globs plus a bare "*" wildcard and
// MCP namespace wildcards ("mcp:server:*").
func matchGlob(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, value)
	if err != nil {
		return pattern == value
	}
	return ok
}

// Decision is the result of evaluating one tool call.
type Decision struct {
	Action      Action
	MatchedRule *Rule
	Reason      string
}

// MCPToolName builds the namespaced name for an MCP-routed tool, per §4.1.
func MCPToolName(server, tool string) string {
	return "mcp:" + server + ":" + tool
}

// IsMCPTool reports whether name is in the mcp:<server>:<tool> form.
func IsMCPTool(name string) bool {
	return strings.HasPrefix(name, "mcp:")
}

// constitutionTTL is the inactivity window after which constitution
// rules are dropped (§3, §8).
const constitutionTTL = time.Hour
