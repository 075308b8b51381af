package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateAdminOverridesUser(t *testing.T) {
	r := NewResolver(ModeAsk)
	r.LoadRules([]Rule{
		{ID: "u1", ToolPattern: "read_file", Action: Allow, Priority: PriorityUser},
		{ID: "a1", ToolPattern: "read_file", ArgPattern: "secrets.*", Action: Deny, Priority: PriorityAdmin, Reason: "admin deny secrets"},
	})

	d := r.Evaluate(context.Background(), "", "read_file", []string{"secrets.env"})
	require.Equal(t, Deny, d.Action)
	require.Equal(t, "a1", d.MatchedRule.ID)

	d = r.Evaluate(context.Background(), "", "read_file", []string{"README"})
	require.Equal(t, Allow, d.Action)
	require.Equal(t, "u1", d.MatchedRule.ID)
}

func TestEvaluateFallbackModes(t *testing.T) {
	r := NewResolver(ModeYolo)
	require.Equal(t, Allow, r.Evaluate(context.Background(), "", "run_command:rm", nil).Action)

	r.SetMode(ModeAutoEdit)
	require.Equal(t, Allow, r.Evaluate(context.Background(), "", "read_file", nil).Action)
	require.Equal(t, AskUser, r.Evaluate(context.Background(), "", "run_command:rm", nil).Action)

	r.SetMode(ModeAsk)
	require.Equal(t, AskUser, r.Evaluate(context.Background(), "", "read_file", nil).Action)
}

func TestShellCommandMatching(t *testing.T) {
	cmd, rest := ExtractShellCommand("rm -rf /tmp/x")
	require.Equal(t, "rm", cmd)
	require.Equal(t, []string{"-rf", "/tmp/x"}, rest)

	r := NewResolver(ModeAsk)
	r.LoadRules([]Rule{{ID: "no-rm", ToolPattern: RunCommandToolName("rm"), Action: Deny, Priority: PriorityDefault}})

	d := r.Evaluate(context.Background(), "", RunCommandToolName(cmd), rest)
	require.Equal(t, Deny, d.Action)
}

func TestConstitutionTTL(t *testing.T) {
	fixed := time.Now()
	c := NewConstitution()
	c.now = func() time.Time { return fixed }
	c.Reset([]string{"never touch production"})

	require.Len(t, c.activeRules(), 1)

	c.now = func() time.Time { return fixed.Add(time.Hour + time.Second) }
	require.Empty(t, c.activeRules())
}

func TestApprovalManagerTimeoutDenies(t *testing.T) {
	m := NewApprovalManager()
	req := m.Create("sess-1", "run_command:rm", "destructive", 10*time.Millisecond)

	err := m.Wait(context.Background(), req)
	require.ErrorIs(t, err, ErrApprovalDenied)
}

func TestApprovalManagerApprove(t *testing.T) {
	m := NewApprovalManager()
	req := m.Create("sess-1", "run_command:rm", "destructive", time.Second)

	go func() {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, m.Decide(req.ID, true, ""))
	}()

	require.NoError(t, m.Wait(context.Background(), req))
}

func TestSuggestionEngine(t *testing.T) {
	s := NewSuggestionEngine(2)
	require.Nil(t, s.Observe("read_file", Allow))
	rule := s.Observe("read_file", Allow)
	require.NotNil(t, rule)
	require.Equal(t, Allow, rule.Action)
}
