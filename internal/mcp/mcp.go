// Package mcp implements the MCP proxy (C10): registers upstream tool
// servers, aggregates their catalogs under a configurable conflict
// strategy, and routes tool calls through to the owning server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConflictStrategy decides what happens when two servers offer a tool
// with the same name (§4.7).
type ConflictStrategy string

const (
	ConflictNamespacePrefix ConflictStrategy = "namespace_prefix"
	ConflictFirstWins       ConflictStrategy = "first_wins"
	ConflictReject          ConflictStrategy = "reject"
)

// ErrConflict is returned by Register under ConflictReject when a tool
// name collides with an already-registered server.
var ErrConflict = errors.New("mcp: tool name conflict")

// Segment is a normalized piece of tool output content (§4.7: "content-
// type normalization to {text|image|audio} segments").
type Segment struct {
	Type string // "text", "image", "audio"
	Data string
}

// ToolDescriptor is one tool as advertised by an upstream server.
type ToolDescriptor struct {
	Server      string
	Name        string
	Description string
	SchemaJSON  string
}

// Transport is the minimal surface an upstream server connection needs
// to expose; stdio/HTTP/SSE transports all implement this (see
// transport.go).
type Transport interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, argsJSON string) ([]Segment, error)
	Ping(ctx context.Context) error
	Close() error
}

// server is one registered upstream.
type server struct {
	name      string
	transport Transport
	healthy   bool
	backoff   time.Duration
}

// Proxy aggregates upstream MCP servers into a single catalog.
type Proxy struct {
	mu       sync.RWMutex
	strategy ConflictStrategy
	servers  map[string]*server
	// catalog maps the exposed tool name (post-conflict-resolution) to
	// the owning server name and the tool's original name.
	catalog map[string]route
	logger  *slog.Logger
}

type route struct {
	server       string
	originalName string
	description  string
	schemaJSON   string
}

func NewProxy(strategy ConflictStrategy) *Proxy {
	if strategy == "" {
		strategy = ConflictNamespacePrefix
	}
	return &Proxy{
		strategy: strategy,
		servers:  map[string]*server{},
		catalog:  map[string]route{},
		logger:   slog.Default().With("component", "mcp"),
	}
}

// Register connects to an upstream server, lists its tools, and merges
// them into the catalog per the configured conflict strategy.
func (p *Proxy) Register(ctx context.Context, name string, t Transport) error {
	tools, err := t.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools for %s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.servers[name] = &server{name: name, transport: t, healthy: true}

	for _, tool := range tools {
		exposed := tool.Name
		if existing, conflict := p.catalog[exposed]; conflict {
			switch p.strategy {
			case ConflictReject:
				delete(p.servers, name)
				return fmt.Errorf("%w: %s already served by %s", ErrConflict, exposed, existing.server)
			case ConflictFirstWins:
				continue
			case ConflictNamespacePrefix:
				exposed = name + "/" + tool.Name
			}
		}
		p.catalog[exposed] = route{
			server: name, originalName: tool.Name,
			description: tool.Description, schemaJSON: tool.SchemaJSON,
		}
	}
	return nil
}

// Unregister removes a server and every tool it contributed to the
// catalog.
func (p *Proxy) Unregister(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	srv, ok := p.servers[name]
	if !ok {
		return nil
	}
	delete(p.servers, name)
	for exposed, r := range p.catalog {
		if r.server == name {
			delete(p.catalog, exposed)
		}
	}
	return srv.transport.Close()
}

// Catalog returns the exposed tool names currently routable.
func (p *Proxy) Catalog() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.catalog))
	for name := range p.catalog {
		names = append(names, name)
	}
	return names
}

// Descriptors returns the catalog as ToolDescriptors, exposed name
// included, so a caller can mirror them into another tool surface (see
// internal/tools.MCPBridge).
func (p *Proxy) Descriptors() []ToolDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(p.catalog))
	for exposed, r := range p.catalog {
		out = append(out, ToolDescriptor{
			Server: r.server, Name: exposed,
			Description: r.description, SchemaJSON: r.schemaJSON,
		})
	}
	return out
}

// Call routes a tool call to its owning server, skipping unhealthy
// servers (§4.7: "unhealthy servers are skipped by the router").
func (p *Proxy) Call(ctx context.Context, exposedName string, argsJSON string) ([]Segment, error) {
	p.mu.RLock()
	r, ok := p.catalog[exposedName]
	if !ok {
		p.mu.RUnlock()
		return nil, fmt.Errorf("mcp: unknown tool %q", exposedName)
	}
	srv := p.servers[r.server]
	p.mu.RUnlock()

	if srv == nil || !srv.healthy {
		return nil, fmt.Errorf("mcp: server %q is unhealthy", r.server)
	}
	return srv.transport.CallTool(ctx, r.originalName, argsJSON)
}

// HealthCheck pings every server and updates its healthy flag. Each
// failed ping doubles the server's recorded backoff (1s up to a
// 1-minute ceiling), which is logged with the warning; a successful
// ping marks the server healthy again and resets it. HealthCheck does
// not wait on that backoff or re-establish the transport: every call
// pings every registered server over its existing connection.
func (p *Proxy) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	servers := make([]*server, 0, len(p.servers))
	for _, s := range p.servers {
		servers = append(servers, s)
	}
	p.mu.Unlock()

	for _, s := range servers {
		err := s.transport.Ping(ctx)
		p.mu.Lock()
		if err != nil {
			s.healthy = false
			if s.backoff == 0 {
				s.backoff = time.Second
			} else if s.backoff < time.Minute {
				s.backoff *= 2
				if s.backoff > time.Minute {
					s.backoff = time.Minute
				}
			}
			p.logger.Warn("mcp server unhealthy", "server", s.name, "backoff", s.backoff, "error", err)
		} else {
			s.healthy = true
			s.backoff = 0
		}
		p.mu.Unlock()
	}
}
