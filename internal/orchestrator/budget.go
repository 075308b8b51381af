package orchestrator

import (
	"context"
	"errors"
	"sync"
)

// ErrBudgetExceeded is returned by BudgetChecker.Estimate when a call
// would cross the hard limit (§4.4: "Exceeding the hard limit returns an
// error").
var ErrBudgetExceeded = errors.New("orchestrator: budget exceeded")

// BudgetChecker separates "estimate before call" from "actual after
// call" accounting (§4.4), the same two-phase shape
// radium-core/src/monitoring/budget_adapter.rs uses for its token
// budget.
type BudgetChecker interface {
	// Estimate is consulted before each model call with a rough token
	// count; it returns ErrBudgetExceeded if the estimate alone would
	// cross the hard limit.
	Estimate(ctx context.Context, sessionID string, estimatedTokens int) error
	// Record is called after each model call with the actual cost.
	// Crossing the warning threshold should be surfaced by the caller
	// as a Telemetry hook/event, not returned as an error (§4.4).
	Record(ctx context.Context, sessionID string, actualTokens int) (warning bool)
}

// TokenBudget is a simple per-session cumulative token budget, the
// default BudgetChecker implementation.
type TokenBudget struct {
	HardLimit    int
	WarnFraction float64 // e.g. 0.8 of HardLimit

	mu    sync.Mutex
	spent map[string]int
}

func NewTokenBudget(hardLimit int, warnFraction float64) *TokenBudget {
	if warnFraction <= 0 || warnFraction > 1 {
		warnFraction = 0.8
	}
	return &TokenBudget{HardLimit: hardLimit, WarnFraction: warnFraction, spent: map[string]int{}}
}

func (b *TokenBudget) Estimate(_ context.Context, sessionID string, estimatedTokens int) error {
	if b.HardLimit <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spent[sessionID]+estimatedTokens > b.HardLimit {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *TokenBudget) Record(_ context.Context, sessionID string, actualTokens int) bool {
	if b.HardLimit <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent[sessionID] += actualTokens
	return float64(b.spent[sessionID]) >= float64(b.HardLimit)*b.WarnFraction
}

// Spent returns the cumulative tokens recorded for a session.
func (b *TokenBudget) Spent(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent[sessionID]
}
