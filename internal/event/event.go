// Package event implements the correlation-keyed, ordered event stream
// (C16): per-session sequence numbers, per-client bounded delivery with
// backpressure.
package event

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind is the canonical event tag (§6).
type Kind string

const (
	KindUserInput         Kind = "UserInput"
	KindAssistantMessage  Kind = "AssistantMessage"
	KindToolCallRequested Kind = "ToolCallRequested"
	KindToolCallStarted   Kind = "ToolCallStarted"
	KindToolCallFinished  Kind = "ToolCallFinished"
	KindApprovalRequired  Kind = "ApprovalRequired"
	KindError             Kind = "Error"
	KindDone              Kind = "Done"
	KindCheckpointRequired Kind = "CheckpointRequired"
	KindBehaviorTriggered Kind = "BehaviorTriggered"
)

// Event is one emitted occurrence, schema-stable JSON over the wire.
type Event struct {
	Kind          Kind            `json:"kind"`
	SessionID     string          `json:"session_id"`
	CorrelationID string          `json:"correlation_id"`
	Sequence      uint64          `json:"sequence"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// subscriber is one attached client's bounded inbox.
type subscriber struct {
	ch     chan Event
	closed bool
}

// bufferSize is the per-client channel capacity before backpressure
// kicks in (§5: "The event stream is bounded per-client").
const bufferSize = 256

// Bus fans out ordered events per session to every attached client,
// assigning strictly monotonic per-session sequence numbers (§5, §8).
type Bus struct {
	mu          sync.Mutex
	sequences   map[string]uint64
	subscribers map[string]map[string]*subscriber // sessionID -> clientID -> subscriber
	onSlowConsumer func(sessionID, clientID string)
}

func NewBus() *Bus {
	return &Bus{
		sequences:   map[string]uint64{},
		subscribers: map[string]map[string]*subscriber{},
	}
}

// OnSlowConsumer registers a callback fired each time an event cannot be
// delivered to a client because its buffer is full. Only that event is
// discarded; the events already buffered for the client are kept and
// the client stays subscribed.
func (b *Bus) OnSlowConsumer(fn func(sessionID, clientID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSlowConsumer = fn
}

// Subscribe attaches a client to a session's event stream and returns a
// channel of future events plus an unsubscribe function.
func (b *Bus) Subscribe(sessionID, clientID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, bufferSize)}

	b.mu.Lock()
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = map[string]*subscriber{}
	}
	b.subscribers[sessionID][clientID] = sub
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subscribers[sessionID]; ok {
			if s, ok := m[clientID]; ok && !s.closed {
				s.closed = true
				close(s.ch)
			}
			delete(m, clientID)
		}
	}
}

// Emit assigns the next sequence number for the session and delivers the
// event to every attached client. A client whose buffer is full has its
// events dropped with a slow_consumer signal rather than blocking the
// session (§5).
func (b *Bus) Emit(sessionID string, kind Kind, correlationID string, payload json.RawMessage) Event {
	b.mu.Lock()
	b.sequences[sessionID]++
	seq := b.sequences[sessionID]
	ev := Event{
		Kind: kind, SessionID: sessionID, CorrelationID: correlationID,
		Sequence: seq, Timestamp: time.Now(), Payload: payload,
	}
	clients := b.subscribers[sessionID]
	onSlow := b.onSlowConsumer
	b.mu.Unlock()

	for clientID, sub := range clients {
		select {
		case sub.ch <- ev:
		default:
			if onSlow != nil {
				onSlow(sessionID, clientID)
			}
		}
	}
	return ev
}

// LastSequence returns the most recently assigned sequence number for a
// session, 0 if none has been emitted.
func (b *Bus) LastSequence(sessionID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequences[sessionID]
}
