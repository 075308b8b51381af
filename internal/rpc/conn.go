package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	protocolVersion = 1
	maxPayloadBytes = 1 << 20
	tickInterval    = 15 * time.Second
	pongWait        = 45 * time.Second
	writeWait       = 10 * time.Second
)

// Upgrader wraps the websocket handshake and the per-connection
// send/receive loops: a buffered outbound channel drained by a
// dedicated writeLoop, a readLoop enforcing a handshake-first "connect"
// call, and drop (not block) when the outbound buffer is full.
type Upgrader struct {
	Server   *Server
	upgrader websocket.Upgrader
}

// NewUpgrader returns an http.Handler that upgrades to a websocket
// connection and serves the RPC surface over it.
func NewUpgrader(server *Server) *Upgrader {
	return &Upgrader{
		Server: server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		server: u.Server,
		ws:     conn,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
	}
	c.run()
}

type conn struct {
	server *Server
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	id        string
	connected atomic.Bool
	seq       int64

	unsubscribe func() // set once attach_session subscribes to the event bus
}

func (c *conn) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *conn) close() {
	c.cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	close(c.send)
	_ = c.ws.Close()
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := c.decodeFrame(data)
		if err != nil {
			c.sendError("", "invalid_frame", err.Error())
			continue
		}

		if !c.connected.Load() {
			if frame.Method != "connect" {
				c.sendError(frame.ID, "handshake_required", "first request must be connect")
				continue
			}
			if err := c.handleConnect(frame); err != nil {
				c.sendError(frame.ID, "connect_failed", err.Error())
				return
			}
			continue
		}

		if err := c.dispatch(frame); err != nil {
			c.sendError(frame.ID, "request_failed", err.Error())
		}
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *conn) decodeFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if frame.Type == "" {
		frame.Type = "req"
	}
	if frame.Type != "req" {
		return nil, fmt.Errorf("unsupported frame type %q", frame.Type)
	}
	if err := validateRequestFrame(raw, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (c *conn) handleConnect(frame *Frame) error {
	payload := map[string]any{
		"type":     "hello-ok",
		"protocol": protocolVersion,
		"connection": map[string]any{
			"id": c.id,
		},
		"methods": SupportedMethods(),
		"events":  SupportedEvents(),
	}
	if err := c.sendResponse(frame.ID, true, payload, nil); err != nil {
		return err
	}
	c.connected.Store(true)
	go c.startTicking()
	return nil
}

func (c *conn) startTicking() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.sendEvent("tick", map[string]any{"timestamp": time.Now().UnixMilli()})
		}
	}
}

func (c *conn) sendResponse(id string, ok bool, payload any, rpcErr *FrameError) error {
	return c.enqueue(Frame{Type: "res", ID: id, OK: &ok, Payload: payload, Error: rpcErr})
}

func (c *conn) sendEvent(name string, payload any) error {
	seq := atomic.AddInt64(&c.seq, 1)
	return c.enqueue(Frame{Type: "event", Event: name, Payload: payload, Seq: &seq})
}

func (c *conn) sendError(id string, code string, message string) {
	_ = c.sendResponse(id, false, nil, &FrameError{Code: code, Message: message})
}

func (c *conn) enqueue(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if len(data) > maxPayloadBytes {
		return fmt.Errorf("payload too large")
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.server.logger().Warn("rpc: dropping frame, send buffer full", "conn", c.id)
		return nil
	}
}
