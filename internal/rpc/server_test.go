package rpc

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Unicorn/Radium-sub010/internal/agentdef"
	"github.com/Unicorn/Radium-sub010/internal/event"
	"github.com/Unicorn/Radium-sub010/internal/session"
	"github.com/Unicorn/Radium-sub010/internal/source"
	"github.com/Unicorn/Radium-sub010/internal/workspace"
)

// testClient dials a test server, performs the connect handshake, and
// offers request/response helpers over raw frames.
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialTestServer(t *testing.T, srv *Server) (*testClient, Frame) {
	t.Helper()
	httpSrv := httptest.NewServer(NewUpgrader(srv))
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	tc := &testClient{t: t, conn: ws}
	resp := tc.request("connect", map[string]any{"client": map[string]any{"id": "test", "version": "1"}})
	require.True(t, *resp.OK)
	return tc, resp
}

func (tc *testClient) request(method string, params any) Frame {
	tc.t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(tc.t, err)

	frame := Frame{Type: "req", ID: method + "-1", Method: method, Params: raw}
	data, err := json.Marshal(frame)
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.conn.WriteMessage(websocket.TextMessage, data))

	return tc.readResponse()
}

// readResponse skips over any pushed event frames (e.g. a stray tick)
// and returns the first "res" frame.
func (tc *testClient) readResponse() Frame {
	tc.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(tc.t, tc.conn.SetReadDeadline(deadline))
	for {
		_, data, err := tc.conn.ReadMessage()
		require.NoError(tc.t, err)
		var frame Frame
		require.NoError(tc.t, json.Unmarshal(data, &frame))
		if frame.Type == "res" {
			return frame
		}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	layout, err := workspace.Locate(t.TempDir())
	require.NoError(t, err)

	sessions := session.NewStore(layout)
	events := event.NewBus()
	sources := source.NewRegistry()
	sources.Register("file", source.FileReader{MaxBytes: 1 << 20})

	agents := map[string]agentdef.Definition{
		"coder": {ID: "coder", Name: "Coder", Engine: "loop", Model: "anthropic/claude"},
	}

	return NewServer(sessions, events, nil, nil, nil, agents, sources, nil)
}

func TestConnectHandshakeAdvertisesMethodsAndEvents(t *testing.T) {
	srv := newTestServer(t)
	_, connectResp := dialTestServer(t, srv)

	payload, ok := connectResp.Payload.(map[string]any)
	require.True(t, ok)
	methods, ok := payload["methods"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, methods)
	events, ok := payload["events"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, events)
}

func TestFirstFrameMustBeConnect(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(NewUpgrader(srv))
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	frame := Frame{Type: "req", ID: "1", Method: "health"}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var resp Frame
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotNil(t, resp.OK)
	require.False(t, *resp.OK)
	require.Equal(t, "handshake_required", resp.Error.Code)
}

func TestHealthAndPing(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	health := tc.request("health", map[string]any{})
	require.True(t, *health.OK)

	ping := tc.request("ping", map[string]any{})
	require.True(t, *ping.OK)
}

func TestCreateListAttachSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	created := tc.request("create_session", map[string]any{"agentId": "coder"})
	require.True(t, *created.OK)
	payload, ok := created.Payload.(map[string]any)
	require.True(t, ok)
	sessionID, _ := payload["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	listed := tc.request("list_sessions", map[string]any{})
	require.True(t, *listed.OK)

	attached := tc.request("attach_session", map[string]any{"sessionId": sessionID})
	require.True(t, *attached.OK)
}

func TestCreateSessionRejectsUnknownAgent(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	resp := tc.request("create_session", map[string]any{"agentId": "ghost"})
	require.False(t, *resp.OK)
	require.Equal(t, "request_failed", resp.Error.Code)
}

func TestListAgentsReturnsDiscoveredDefinitions(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	resp := tc.request("list_agents", map[string]any{})
	require.True(t, *resp.OK)
	payload, ok := resp.Payload.(map[string]any)
	require.True(t, ok)
	agents, ok := payload["agents"].([]any)
	require.True(t, ok)
	require.Len(t, agents, 1)
}

func TestValidateSourcesChecksFileURI(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	resp := tc.request("validate_sources", map[string]any{"uris": []string{"file:///does/not/exist"}})
	require.True(t, *resp.OK)
	payload, ok := resp.Payload.(map[string]any)
	require.True(t, ok)
	results, ok := payload["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
}

func TestAttachSessionForwardsEmittedEvents(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	created := tc.request("create_session", map[string]any{"agentId": "coder"})
	payload := created.Payload.(map[string]any)
	sessionID := payload["sessionId"].(string)

	attached := tc.request("attach_session", map[string]any{"sessionId": sessionID})
	require.True(t, *attached.OK)

	srv.Events.Emit(sessionID, event.KindAssistantMessage, "", json.RawMessage(`{"text":"hi"}`))

	require.NoError(t, tc.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, raw, err := tc.conn.ReadMessage()
		require.NoError(t, err)
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Type == "event" && frame.Event == "AssistantMessage" {
			return
		}
	}
}

func TestCancelSessionTurnWithNoActiveTurnReportsFalse(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := dialTestServer(t, srv)

	resp := tc.request("cancel_session_turn", map[string]any{"sessionId": "nonexistent"})
	require.True(t, *resp.OK)
	payload := resp.Payload.(map[string]any)
	require.Equal(t, false, payload["cancelled"])
}

