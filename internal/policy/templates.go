package policy

import "sort"

// Template is a named, reusable bundle of rules (supplemented feature,
// grounded on radium-core/src/policy/templates.rs): common starting
// points like "strict" or "coding-agent" that a workspace config can
// merge into its own rule set instead of hand-writing every rule.
type Template struct {
	Name  string
	Rules []Rule
}

// BuiltinTemplates returns the named templates shipped with Radium.
func BuiltinTemplates() map[string]Template {
	return map[string]Template{
		"strict": {
			Name: "strict",
			Rules: []Rule{
				{ID: "strict-deny-rm", ToolPattern: "run_command:rm", Action: Deny, Priority: PriorityDefault, Reason: "strict template denies rm"},
				{ID: "strict-ask-write", ToolPattern: "write_file", Action: AskUser, Priority: PriorityDefault, Reason: "strict template asks before writes"},
			},
		},
		"permissive": {
			Name: "permissive",
			Rules: []Rule{
				{ID: "permissive-allow-all", ToolPattern: "*", Action: Allow, Priority: PriorityDefault, Reason: "permissive template allows all"},
			},
		},
		"coding-agent": {
			Name: "coding-agent",
			Rules: []Rule{
				{ID: "coding-allow-read", ToolPattern: "read_file", Action: Allow, Priority: PriorityDefault},
				{ID: "coding-allow-search", ToolPattern: "search", Action: Allow, Priority: PriorityDefault},
				{ID: "coding-allow-edit", ToolPattern: "edit_file", Action: Allow, Priority: PriorityDefault},
				{ID: "coding-ask-shell", ToolPattern: "run_command:*", Action: AskUser, Priority: PriorityDefault, Reason: "coding-agent template asks before shell"},
			},
		},
	}
}

// MergeTemplate appends a named template's rules into the resolver's
// current rule set, installing a new rule map so a concurrent Evaluate
// keeps reading the snapshot it already holds.
func (r *Resolver) MergeTemplate(name string) bool {
	tmpl, ok := BuiltinTemplates()[name]
	if !ok {
		return false
	}

	r.mu.Lock()
	next := make(map[Priority][]Rule, len(r.rules))
	for p, rs := range r.rules {
		next[p] = append([]Rule(nil), rs...)
	}
	for _, rule := range tmpl.Rules {
		next[rule.Priority] = append(next[rule.Priority], rule)
	}
	r.rules = next
	r.mu.Unlock()
	return true
}

// decisionObservation is one recorded AskUser outcome, used by the
// suggestion engine below.
type decisionObservation struct {
	toolName string
	action   Action
}

// SuggestionEngine proposes a new rule after N consecutive identical
// AskUser decisions for the same tool (supplemented feature, grounded on
// radium-core/src/policy/suggestions.rs), so a user who always approves
// "read_file" is nudged toward an Allow rule instead of re-approving
// forever.
type SuggestionEngine struct {
	threshold int
	history   map[string][]Action
}

// NewSuggestionEngine returns an engine that proposes a rule once a tool
// has seen threshold consecutive identical decisions.
func NewSuggestionEngine(threshold int) *SuggestionEngine {
	if threshold <= 0 {
		threshold = 3
	}
	return &SuggestionEngine{threshold: threshold, history: map[string][]Action{}}
}

// Observe records a decision outcome and returns a proposed rule when the
// streak reaches the threshold, nil otherwise.
func (s *SuggestionEngine) Observe(toolName string, action Action) *Rule {
	hist := append(s.history[toolName], action)
	if len(hist) > s.threshold {
		hist = hist[len(hist)-s.threshold:]
	}
	s.history[toolName] = hist

	if len(hist) < s.threshold {
		return nil
	}
	for _, a := range hist {
		if a != action {
			return nil
		}
	}
	return &Rule{
		ID:          "suggested-" + toolName,
		ToolPattern: toolName,
		Action:      action,
		Priority:    PriorityUser,
		Reason:      "suggested after repeated identical decisions",
	}
}

// ToolsByDecisionCount is a debugging helper returning tool names sorted
// by how many recent decisions are held for them; each tool keeps at most
// threshold decisions, so counts never exceed the threshold.
func (s *SuggestionEngine) ToolsByDecisionCount() []string {
	names := make([]string, 0, len(s.history))
	for name := range s.history {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(s.history[names[i]]) > len(s.history[names[j]])
	})
	return names
}
