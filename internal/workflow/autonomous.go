package workflow

import (
	"context"

	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/policy"
)

// AutonomousPolicy grants a bounded set of tools a pre-approved fast
// path for a single workflow run, without touching the process-wide
// policy rule set (supplemented feature, grounded on
// radium-core/src/autonomous/mod.rs: "a workflow run... can enter
// autonomous mode with a bounded set of pre-approved tools"). Scope is
// one workflow run's steps, never session-wide or permanent: it acts
// only by deciding AskUser requests the engine observes for sessions it
// was told to watch, never by registering Allow rules.
type AutonomousPolicy struct {
	AllowedTools map[string]bool
}

// Watch auto-approves every ApprovalRequired event for sessionID whose
// tool is in AllowedTools, for as long as the returned stop func hasn't
// been called. The caller starts this before running a step and stops
// it once that step's turn returns.
func (p *AutonomousPolicy) Watch(ctx context.Context, events *event.Bus, approvals *policy.ApprovalManager, sessionID string) (stop func()) {
	if p == nil || len(p.AllowedTools) == 0 {
		return func() {}
	}

	ch, unsubscribe := events.Subscribe(sessionID, "autonomous:"+sessionID)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if evt.Kind != event.KindApprovalRequired {
					continue
				}
				var payload struct {
					ApprovalID string `json:"approval_id"`
					Tool       string `json:"tool"`
				}
				if err := decodeJSON(evt.Payload, &payload); err != nil || !p.AllowedTools[payload.Tool] {
					continue
				}
				_ = approvals.Decide(payload.ApprovalID, true, "")
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		unsubscribe()
	}
}
