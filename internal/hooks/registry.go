package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registration is one registered hook's bookkeeping.
type Registration struct {
	ID       string
	Type     Type
	Handler  Handler
	Priority Priority
	Name     string
}

// RegisterOption configures a Registration at Register time.
type RegisterOption func(*Registration)

func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

func WithName(name string) RegisterOption {
	return func(r *Registration) { r.Name = name }
}

// Registry is the process-wide hook table. It is copy-on-write: Execute
// reads an immutable slice snapshot per Type so a registration made
// mid-turn never mutates a turn already in flight (§9).
type Registry struct {
	mu       sync.RWMutex
	byType   map[Type][]*Registration
	byID     map[string]*Registration
	logger   *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byType: map[Type][]*Registration{},
		byID:   map[string]*Registration{},
		logger: slog.Default().With("component", "hooks"),
	}
}

// Register adds a hook for a Type and returns its generated id.
func (r *Registry) Register(t Type, h Handler, opts ...RegisterOption) string {
	reg := &Registration{
		ID:       uuid.NewString(),
		Type:     t,
		Handler:  h,
		Priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := append(append([]*Registration{}, r.byType[t]...), reg)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Priority < next[j].Priority })
	r.byType[t] = next
	r.byID[reg.ID] = reg

	return reg.ID
}

// Unregister removes a hook by id, returning whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	next := make([]*Registration, 0, len(r.byType[reg.Type]))
	for _, cand := range r.byType[reg.Type] {
		if cand.ID != id {
			next = append(next, cand)
		}
	}
	r.byType[reg.Type] = next
	return true
}

// Clear removes every registered hook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = map[Type][]*Registration{}
	r.byID = map[string]*Registration{}
}

// ExecuteOutcome summarizes one Execute invocation for the caller: whether it
// was vetoed, and the final Data/Result after all rewrites.
type ExecuteOutcome struct {
	Stopped    bool
	StopReason string
	Data       string
	Result     string
}

// Execute runs every hook registered for event.Type, in priority then
// registration order, feeding each hook's rewrite forward to the next
// (§4.2, §8: "ascending p order; a stop result prevents all later hooks
// in that invocation from firing").
func (r *Registry) Execute(ctx context.Context, event Event) ExecuteOutcome {
	r.mu.RLock()
	chain := r.byType[event.Type]
	r.mu.RUnlock()

	out := ExecuteOutcome{Data: event.Data, Result: event.Result}
	cur := event

	for _, reg := range chain {
		res := r.callHandler(ctx, reg, cur)
		if res.Err != nil {
			r.logger.Warn("hook error", "hook", reg.Name, "type", event.Type, "error", res.Err)
			continue
		}
		switch res.Outcome {
		case Stop:
			out.Stopped = true
			out.StopReason = res.Message
			return out
		case ReplaceData:
			if res.Data != "" {
				cur.Data = res.Data
				out.Data = res.Data
			}
			if res.Result != "" {
				cur.Result = res.Result
				out.Result = res.Result
			}
		}
	}
	return out
}

// callHandler recovers a panicking hook into an error result so one
// misbehaving hook cannot take down the orchestrator.
func (r *Registry) callHandler(ctx context.Context, reg *Registration, event Event) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Err: fmt.Errorf("hook %q panicked: %v", reg.Name, p)}
		}
	}()
	return reg.Handler(ctx, event)
}

// Count returns the number of hooks registered for a Type.
func (r *Registry) Count(t Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[t])
}
