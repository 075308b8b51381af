package workflow

import "sync"

// LoopKey identifies one loop edge: the step the loop behavior fires
// from and the step it jumps back to. Counting per (step-index,
// trigger-point) rather than globally per workflow means two different
// loop edges in the same workflow get independent budgets.
type LoopKey struct {
	FromStepIndex int
	ToStepIndex   int
}

// LoopCounters tracks how many times each loop edge has fired, the
// invariant §9 requires: "strictly monotonic non-decreasing and never
// exceeds the configured cap."
type LoopCounters struct {
	mu     sync.Mutex
	counts map[LoopKey]int
}

func NewLoopCounters() *LoopCounters {
	return &LoopCounters{counts: map[LoopKey]int{}}
}

// Allow reports whether the edge may fire again, incrementing its
// counter when it does. Once the cap is reached it keeps returning
// false for that edge — the counter itself never decreases or resets.
func (l *LoopCounters) Allow(key LoopKey, cap int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] >= cap {
		return false
	}
	l.counts[key]++
	return true
}

// Count returns how many times an edge has fired so far.
func (l *LoopCounters) Count(key LoopKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key]
}
