// Package tools implements the typed tool surface (C11): file ops,
// search, git, symbol index, terminal, and nested-agent tools, each
// declaring a JSON Schema for its arguments and validated before
// execution.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is a tool's execution outcome, fed back to the model as a tool
// message (§4.4 step 5).
type Result struct {
	Content string
	IsError bool
}

type dryRunKey struct{}

// WithDryRun marks ctx so a mutating tool handler produces a preview of
// its effect instead of applying it (§4.4 step 4a, DryRunFirst: "execute
// in read-only mode and present the diff for approval").
func WithDryRun(ctx context.Context) context.Context {
	return context.WithValue(ctx, dryRunKey{}, true)
}

// IsDryRun reports whether ctx was marked by WithDryRun.
func IsDryRun(ctx context.Context) bool {
	dryRun, _ := ctx.Value(dryRunKey{}).(bool)
	return dryRun
}

// Handler executes one tool call given its raw JSON arguments.
type Handler func(ctx context.Context, argsJSON json.RawMessage) (Result, error)

// Tool is one registered, schema-validated operation.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Handler     Handler

	compiled *jsonschema.Schema
}

// Registry is the process-wide tool catalog. Native tools are
// registered at startup; MCP-discovered tools are merged in by the
// caller (spec §4.7: "MCP integration bridge... wires MCP-discovered
// tools into the same tool registry the orchestrator reads").
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register compiles a tool's schema and adds it to the catalog.
func (r *Registry) Register(t Tool) error {
	if t.SchemaJSON != "" {
		compiler := jsonschema.NewCompiler()
		url := "mem://" + t.Name + ".json"
		if err := compiler.AddResource(url, strings.NewReader(t.SchemaJSON)); err != nil {
			return fmt.Errorf("add schema resource for %s: %w", t.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", t.Name, err)
		}
		t.compiled = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = &t
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Unregister removes a tool from the catalog.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Execute validates arguments against the tool's schema (if any) and
// runs its handler.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON json.RawMessage) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("tools: unknown tool %q", name)
	}

	if t.compiled != nil {
		var v any
		if err := json.Unmarshal(argsJSON, &v); err != nil {
			return Result{IsError: true, Content: fmt.Sprintf("invalid arguments JSON: %v", err)}, nil
		}
		if err := t.compiled.Validate(v); err != nil {
			return Result{IsError: true, Content: fmt.Sprintf("schema validation failed: %v", err)}, nil
		}
	}

	return t.Handler(ctx, argsJSON)
}
