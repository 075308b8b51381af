package workflow

import (
	"strings"
	"time"

	"github.com/Unicorn/Radium-sub010/internal/orchestrator"
)

// ClassifyString maps a step failure's plain-text reason onto §7's
// taxonomy (reusing orchestrator.ErrorKind as the single source of
// truth for the enum) when the failure didn't carry a structured
// orchestrator error to run through orchestrator.Classify — e.g. a tool
// or agent reporting free-text failure text inside a step's output.
// Grounded on the original failure classifier's substring heuristics
// (timeout/connection -> transient, invalid/validation -> permanent,
// "agent not found" -> agent failure, otherwise unknown).
func ClassifyString(reason string) orchestrator.ErrorKind {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"), strings.Contains(lower, "network"):
		return orchestrator.KindTransient
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "validation"):
		return orchestrator.KindPermanent
	case strings.Contains(lower, "agent not found"), strings.Contains(lower, "unknown agent"):
		return orchestrator.KindAgentFailure
	default:
		return orchestrator.KindUnknown
	}
}

// FailureRecord is one classified failure in a step's history.
type FailureRecord struct {
	Kind    orchestrator.ErrorKind `json:"kind"`
	Message string                 `json:"message"`
	At      time.Time              `json:"at"`
}

// FailureHistory is the full, append-only failure log for one step,
// written to the step's task record after each attempt. runStepWithRetry
// starts every step run with an empty history and does not read a stored
// one back, so attempt counts do not carry over a restart or a Resume.
type FailureHistory struct {
	Failures []FailureRecord `json:"failures"`
}

// AddFailure appends a classified failure.
func (h *FailureHistory) AddFailure(kind orchestrator.ErrorKind, message string) {
	h.Failures = append(h.Failures, FailureRecord{Kind: kind, Message: message, At: time.Now()})
}

// RetryCount is the number of attempts already failed.
func (h FailureHistory) RetryCount() int {
	return len(h.Failures)
}

// FailurePolicy tunes the retry/backoff controller (§4.5: "retried with
// exponential backoff (base 1s, factor 2, cap 60s) up to a policy
// threshold (default 3)").
type FailurePolicy struct {
	Threshold int
	BaseDelay time.Duration
	Factor    float64
	Cap       time.Duration
}

// DefaultFailurePolicy returns the retry policy's named defaults.
func DefaultFailurePolicy() FailurePolicy {
	return FailurePolicy{Threshold: 3, BaseDelay: time.Second, Factor: 2, Cap: 60 * time.Second}
}

// ShouldRetry reports whether a step with the given failure history and
// latest classification should be retried. Only Transient and
// AgentFailure are retryable (§4.5, §7 propagation policy); Permanent
// and Unknown stop the workflow.
func (p FailurePolicy) ShouldRetry(h FailureHistory, kind orchestrator.ErrorKind) bool {
	if kind != orchestrator.KindTransient && kind != orchestrator.KindAgentFailure {
		return false
	}
	return h.RetryCount() < p.Threshold
}

// NextBackoff returns the delay before retry attempt number attempt
// (0-indexed), doubling from BaseDelay and capped at Cap.
func (p FailurePolicy) NextBackoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Factor)
		if delay > p.Cap {
			return p.Cap
		}
	}
	if delay > p.Cap {
		delay = p.Cap
	}
	return delay
}
