package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopCountersAllowUpToCap(t *testing.T) {
	l := NewLoopCounters()
	key := LoopKey{FromStepIndex: 2, ToStepIndex: 0}

	require.True(t, l.Allow(key, 2))
	require.True(t, l.Allow(key, 2))
	require.False(t, l.Allow(key, 2))
	require.False(t, l.Allow(key, 2))
	require.Equal(t, 2, l.Count(key))
}

func TestLoopCountersTrackEdgesIndependently(t *testing.T) {
	l := NewLoopCounters()
	a := LoopKey{FromStepIndex: 2, ToStepIndex: 0}
	b := LoopKey{FromStepIndex: 4, ToStepIndex: 1}

	require.True(t, l.Allow(a, 1))
	require.False(t, l.Allow(a, 1))
	require.True(t, l.Allow(b, 1))
}
