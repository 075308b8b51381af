package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Unicorn/Radium-sub010/internal/orchestrator"
)

func TestClassifyStringHeuristics(t *testing.T) {
	cases := []struct {
		reason string
		want   orchestrator.ErrorKind
	}{
		{"connection timeout after 30s", orchestrator.KindTransient},
		{"network unreachable", orchestrator.KindTransient},
		{"invalid input: missing field", orchestrator.KindPermanent},
		{"validation failed", orchestrator.KindPermanent},
		{"agent not found: reviewer", orchestrator.KindAgentFailure},
		{"unknown agent id", orchestrator.KindAgentFailure},
		{"something went sideways", orchestrator.KindUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyString(tc.reason), tc.reason)
	}
}

func TestFailurePolicyShouldRetryOnlyRecoverableKinds(t *testing.T) {
	p := DefaultFailurePolicy()
	h := FailureHistory{}

	require.True(t, p.ShouldRetry(h, orchestrator.KindTransient))
	require.True(t, p.ShouldRetry(h, orchestrator.KindAgentFailure))
	require.False(t, p.ShouldRetry(h, orchestrator.KindPermanent))
	require.False(t, p.ShouldRetry(h, orchestrator.KindUnknown))
}

func TestFailurePolicyStopsRetryingPastThreshold(t *testing.T) {
	p := DefaultFailurePolicy()
	h := FailureHistory{}
	h.AddFailure(orchestrator.KindTransient, "one")
	h.AddFailure(orchestrator.KindTransient, "two")
	h.AddFailure(orchestrator.KindTransient, "three")

	require.Equal(t, 3, h.RetryCount())
	require.False(t, p.ShouldRetry(h, orchestrator.KindTransient))
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	p := FailurePolicy{BaseDelay: time.Second, Factor: 2, Cap: 5 * time.Second}

	require.Equal(t, time.Second, p.NextBackoff(0))
	require.Equal(t, 2*time.Second, p.NextBackoff(1))
	require.Equal(t, 4*time.Second, p.NextBackoff(2))
	require.Equal(t, 5*time.Second, p.NextBackoff(3))
}
