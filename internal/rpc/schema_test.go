package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeValid(t *testing.T, raw string) *Frame {
	t.Helper()
	c := &conn{}
	frame, err := c.decodeFrame([]byte(raw))
	require.NoError(t, err)
	return frame
}

func TestDecodeFrameDefaultsTypeToReq(t *testing.T) {
	frame := decodeValid(t, `{"id":"1","method":"health"}`)
	assert.Equal(t, "req", frame.Type)
	assert.Equal(t, "health", frame.Method)
}

func TestDecodeFrameRejectsNonRequestType(t *testing.T) {
	c := &conn{}
	_, err := c.decodeFrame([]byte(`{"type":"res","id":"1","method":"health"}`))
	assert.Error(t, err)
}

func TestDecodeFrameRejectsMissingMethod(t *testing.T) {
	c := &conn{}
	_, err := c.decodeFrame([]byte(`{"id":"1"}`))
	assert.Error(t, err)
}

func TestDecodeFrameValidatesPerMethodParams(t *testing.T) {
	c := &conn{}

	_, err := c.decodeFrame([]byte(`{"id":"1","method":"create_session","params":{}}`))
	assert.Error(t, err, "agentId is required")

	frame, err := c.decodeFrame([]byte(`{"id":"1","method":"create_session","params":{"agentId":"coder"}}`))
	require.NoError(t, err)
	assert.Equal(t, "create_session", frame.Method)
}

func TestDecodeFrameAllowsExtraParamsForOpenSchema(t *testing.T) {
	// health's params schema does not forbid additional properties, so a
	// frame carrying extra params still passes validation.
	frame := decodeValid(t, `{"id":"1","method":"health","params":{"anything":true}}`)
	assert.Equal(t, "health", frame.Method)
}

func TestValidateSourcesParamsSchemaRejectsMissingURIs(t *testing.T) {
	c := &conn{}
	_, err := c.decodeFrame([]byte(`{"id":"1","method":"validate_sources","params":{}}`))
	assert.Error(t, err)

	frame, err := c.decodeFrame([]byte(`{"id":"1","method":"validate_sources","params":{"uris":["file:///a"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "validate_sources", frame.Method)
}

func TestExecuteWorkflowParamsSchemaRequiresSteps(t *testing.T) {
	c := &conn{}
	_, err := c.decodeFrame([]byte(`{"id":"1","method":"execute_workflow","params":{"name":"w"}}`))
	assert.Error(t, err)

	_, err = c.decodeFrame([]byte(`{"id":"1","method":"execute_workflow","params":{"name":"w","steps":[]}}`))
	assert.Error(t, err, "steps must be non-empty")

	frame, err := c.decodeFrame([]byte(`{"id":"1","method":"execute_workflow","params":{"name":"w","steps":[{"agentId":"coder"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "execute_workflow", frame.Method)
}
