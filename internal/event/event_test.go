package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitAssignsMonotonicSequence(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("sess-1", "client-1")
	defer unsub()

	b.Emit("sess-1", KindUserInput, "corr-1", nil)
	b.Emit("sess-1", KindAssistantMessage, "corr-1", nil)

	first := <-ch
	second := <-ch
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, uint64(2), second.Sequence)
}

func TestSlowConsumerDropsWithoutBlocking(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("sess-1", "client-1")
	defer unsub()

	var dropped []string
	b.OnSlowConsumer(func(sessionID, clientID string) {
		dropped = append(dropped, clientID)
	})

	for i := 0; i < bufferSize+10; i++ {
		b.Emit("sess-1", KindToolCallStarted, "corr-1", nil)
	}
	require.NotEmpty(t, dropped)

	// Draining still works; the session's emission was never blocked.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected at least one buffered event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("sess-1", "client-1")
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}
