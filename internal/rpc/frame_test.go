package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedMethodsIncludesHandshakeAndCore(t *testing.T) {
	methods := SupportedMethods()
	for _, want := range []string{"connect", "health", "create_session", "attach_session", "execute_workflow"} {
		assert.Contains(t, methods, want)
	}
}

func TestSupportedEventsIncludesTurnLifecycle(t *testing.T) {
	events := SupportedEvents()
	for _, want := range []string{"tick", "AssistantMessage", "ToolCallRequested", "Done"} {
		assert.Contains(t, events, want)
	}
}

func TestFrameRoundTripsOmitsEmptyFields(t *testing.T) {
	ok := true
	frame := Frame{Type: "res", ID: "abc", OK: &ok, Payload: map[string]any{"x": 1}}
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "method")
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, "res", decoded["type"])
}
