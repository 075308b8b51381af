package policy

import (
	"context"
	"log/slog"
	"sync"
)

// readOnlyTools and editInWorkspaceTools classify tools for the autoEdit
// approval-mode fallback (§4.1: "autoEdit -> Allow for read-only and
// edit-in-workspace tools, Ask otherwise").
var readOnlyTools = map[string]bool{
	"read_file": true, "search": true, "grep": true, "list_files": true,
	"symbol_index": true, "git_status": true, "git_log": true, "git_diff": true,
	"list_directory": true, "search_files": true,
}

var editInWorkspaceTools = map[string]bool{
	"edit_file": true, "write_file": true, "apply_patch": true, "git_add": true, "git_commit": true,
}

// AnalyticsRecorder is the best-effort sink for policy decisions (§4.1).
// A nil recorder, or one that errors, never affects evaluation.
type AnalyticsRecorder interface {
	RecordDecision(ctx context.Context, toolName string, action Action, matchedRuleID string)
}

// Resolver holds the process-wide rule set (copy-on-write: Evaluate reads
// an immutable snapshot so in-flight turns never observe a partial
// update) plus the active approval mode and any session constitutions.
type Resolver struct {
	mu     sync.RWMutex
	rules  map[Priority][]Rule
	mode   ApprovalMode
	logger *slog.Logger

	constitutions map[string]*Constitution

	analytics AnalyticsRecorder
}

// NewResolver constructs a Resolver with the given process-wide
// approval-mode fallback.
func NewResolver(mode ApprovalMode) *Resolver {
	return &Resolver{
		rules:         map[Priority][]Rule{},
		mode:          mode,
		logger:        slog.Default().With("component", "policy"),
		constitutions: map[string]*Constitution{},
	}
}

// SetAnalyticsRecorder wires a best-effort analytics sink.
func (r *Resolver) SetAnalyticsRecorder(a AnalyticsRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analytics = a
}

// LoadRules replaces the rule set. A rule with an empty tool pattern is
// logged and dropped one by one; the remaining rules are kept.
func (r *Resolver) LoadRules(rules []Rule) {
	grouped := map[Priority][]Rule{}
	for _, rule := range rules {
		if rule.ToolPattern == "" {
			r.logger.Warn("dropping rule with empty tool pattern", "rule_id", rule.ID)
			continue
		}
		grouped[rule.Priority] = append(grouped[rule.Priority], rule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = grouped
}

// SetMode changes the process-wide approval-mode fallback.
func (r *Resolver) SetMode(mode ApprovalMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// Evaluate decides a tool call, optionally scoped to a session whose
// constitution (if any) is consulted ahead of the static User rules
// (§3: constitution rules carry "the highest User priority").
func (r *Resolver) Evaluate(ctx context.Context, sessionID, toolName string, args []string) Decision {
	r.mu.RLock()
	rules := r.rules
	mode := r.mode
	analytics := r.analytics
	var constitution *Constitution
	var constitutionRules []Rule
	if sessionID != "" {
		if c, ok := r.constitutions[sessionID]; ok {
			constitution = c
			constitutionRules = c.activeRules()
		}
	}
	r.mu.RUnlock()

	decision := r.evaluateLocked(rules, constitutionRules, toolName, args, mode)
	if constitution != nil && decision.MatchedRule != nil {
		for _, cr := range constitutionRules {
			if cr.ID == decision.MatchedRule.ID {
				constitution.Touch()
				break
			}
		}
	}

	if analytics != nil {
		matched := ""
		if decision.MatchedRule != nil {
			matched = decision.MatchedRule.ID
		}
		analytics.RecordDecision(ctx, toolName, decision.Action, matched)
	}
	return decision
}

func (r *Resolver) evaluateLocked(rules map[Priority][]Rule, constitutionRules []Rule, toolName string, args []string, mode ApprovalMode) Decision {
	for _, p := range priorityOrder {
		var group []Rule
		if p == PriorityUser {
			// Constitution rules evaluate first within the User group,
			// since they were mechanically added at "the highest User
			// priority" (§3).
			group = append(append([]Rule{}, constitutionRules...), rules[p]...)
		} else {
			group = rules[p]
		}
		for i := range group {
			rule := group[i]
			if rule.Matches(toolName, args) {
				return Decision{Action: rule.Action, MatchedRule: &rule, Reason: rule.Reason}
			}
		}
	}

	return fallbackDecision(mode, toolName)
}

func fallbackDecision(mode ApprovalMode, toolName string) Decision {
	switch mode {
	case ModeYolo:
		return Decision{Action: Allow, Reason: "approval mode yolo"}
	case ModeAutoEdit:
		if readOnlyTools[toolName] || editInWorkspaceTools[toolName] {
			return Decision{Action: Allow, Reason: "approval mode autoEdit: read-only or in-workspace edit"}
		}
		return Decision{Action: AskUser, Reason: "approval mode autoEdit: requires confirmation"}
	default:
		return Decision{Action: AskUser, Reason: "approval mode ask"}
	}
}
