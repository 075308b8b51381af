package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
)

// rpcRequest/rpcResponse are minimal JSON-RPC 2.0 envelopes, the wire
// format MCP servers speak over stdio and HTTP alike.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StdioTransport speaks MCP's JSON-RPC framing over a child process's
// stdin/stdout, one request per line.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	mu     sync.Mutex
	nextID int
}

// NewStdioTransport starts command as a child process and wires its
// stdio.
func NewStdioTransport(ctx context.Context, command string, args ...string) (*StdioTransport, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mcp server: %w", err)
	}
	return &StdioTransport{cmd: cmd, stdin: stdin, reader: bufio.NewReader(stdout)}, nil
}

func (t *StdioTransport) call(method string, params any) (rpcResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return rpcResponse{}, fmt.Errorf("marshal params: %w", err)
	}
	req := rpcRequest{JSONRPC: "2.0", ID: t.nextID, Method: method, Params: paramsJSON}
	line, err := json.Marshal(req)
	if err != nil {
		return rpcResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(line, '\n')); err != nil {
		return rpcResponse{}, fmt.Errorf("write request: %w", err)
	}

	respLine, err := t.reader.ReadString('\n')
	if err != nil {
		return rpcResponse{}, fmt.Errorf("read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return rpcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return rpcResponse{}, fmt.Errorf("mcp server error: %s", resp.Error.Message)
	}
	return resp, nil
}

func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.call("tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &payload); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	out := make([]ToolDescriptor, len(payload.Tools))
	for i, tool := range payload.Tools {
		out[i] = ToolDescriptor{Name: tool.Name, Description: tool.Description, SchemaJSON: string(tool.InputSchema)}
	}
	return out, nil
}

func (t *StdioTransport) CallTool(ctx context.Context, name string, argsJSON string) ([]Segment, error) {
	var args json.RawMessage = []byte(argsJSON)
	resp, err := t.call("tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	return decodeSegments(resp.Result)
}

func (t *StdioTransport) Ping(ctx context.Context) error {
	_, err := t.call("ping", map[string]any{})
	return err
}

func (t *StdioTransport) Close() error {
	t.stdin.Close()
	return t.cmd.Wait()
}

// HTTPTransport speaks MCP's JSON-RPC framing over a single HTTP
// endpoint, used for remote tool servers (and SSE-backed servers that
// accept the same POST envelope for calls).
type HTTPTransport struct {
	endpoint string
	client   *http.Client

	mu     sync.Mutex
	nextID int
}

func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{endpoint: endpoint, client: client}
}

func (t *HTTPTransport) call(ctx context.Context, method string, params any) (rpcResponse, error) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return rpcResponse{}, fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: paramsJSON})
	if err != nil {
		return rpcResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return rpcResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return rpcResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return rpcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResponse{}, fmt.Errorf("mcp server error: %s", rpcResp.Error.Message)
	}
	return rpcResp, nil
}

func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &payload); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	out := make([]ToolDescriptor, len(payload.Tools))
	for i, tool := range payload.Tools {
		out[i] = ToolDescriptor{Name: tool.Name, Description: tool.Description, SchemaJSON: string(tool.InputSchema)}
	}
	return out, nil
}

func (t *HTTPTransport) CallTool(ctx context.Context, name string, argsJSON string) ([]Segment, error) {
	var args json.RawMessage = []byte(argsJSON)
	resp, err := t.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	return decodeSegments(resp.Result)
}

func (t *HTTPTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", map[string]any{})
	return err
}

func (t *HTTPTransport) Close() error { return nil }

func decodeSegments(raw json.RawMessage) ([]Segment, error) {
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Data string `json:"data"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	out := make([]Segment, len(payload.Content))
	for i, c := range payload.Content {
		data := c.Text
		if data == "" {
			data = c.Data
		}
		out[i] = Segment{Type: c.Type, Data: data}
	}
	return out, nil
}
