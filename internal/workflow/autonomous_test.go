package workflow

import (
	"context"
	"time"

	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/policy"
)

func TestAutonomousPolicyApprovesAllowedTool(t *testing.T) {
	events := event.NewBus()
	approvals := policy.NewApprovalManager()

	p := &AutonomousPolicy{AllowedTools: map[string]bool{"run_tests": true}}
	stop := p.Watch(context.Background(), events, approvals, "sess-1")
	defer stop()

	req := approvals.Create("sess-1", "run_tests", "autonomous", time.Minute)
	events.Emit("sess-1", event.KindApprovalRequired, "", jsonMust(map[string]string{
		"approval_id": req.ID, "tool": "run_tests",
	}))

	require.Eventually(t, func() bool {
		return approvals.Wait(context.Background(), req) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestAutonomousPolicyIgnoresDisallowedTool(t *testing.T) {
	events := event.NewBus()
	approvals := policy.NewApprovalManager()

	p := &AutonomousPolicy{AllowedTools: map[string]bool{"run_tests": true}}
	stop := p.Watch(context.Background(), events, approvals, "sess-1")
	defer stop()

	req := approvals.Create("sess-1", "delete_everything", "autonomous", 50*time.Millisecond)
	events.Emit("sess-1", event.KindApprovalRequired, "", jsonMust(map[string]string{
		"approval_id": req.ID, "tool": "delete_everything",
	}))

	err := approvals.Wait(context.Background(), req)
	require.ErrorIs(t, err, policy.ErrApprovalDenied)
}

func TestNilAutonomousPolicyWatchIsNoop(t *testing.T) {
	var p *AutonomousPolicy
	stop := p.Watch(context.Background(), event.NewBus(), policy.NewApprovalManager(), "sess-1")
	stop()
}
