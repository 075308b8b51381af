package orchestrator

import "time"

// Config tunes the turn machine's bounds (§4.4, §9 Open Questions).
type Config struct {
	// MaxIterations caps tool-calling turns per user message before the
	// loop force-stops with reason=max_iterations. Default 16 (§4.4).
	MaxIterations int

	// ApprovalTimeout is the single config value every AskUser
	// suspension point uses (Open Question #2 — pinned here rather than
	// per-call-site).
	ApprovalTimeout time.Duration

	// MaxDepth bounds nested-agent recursion (spawn_agent tool, §9
	// "Agent-graph composition").
	MaxDepth int

	// DefaultMaxTokens is used when an agent definition doesn't specify
	// one for a model request.
	DefaultMaxTokens int
}

// DefaultConfig returns the orchestrator's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    16,
		ApprovalTimeout:  5 * time.Minute,
		MaxDepth:         4,
		DefaultMaxTokens: 4096,
	}
}

func sanitize(cfg Config) Config {
	d := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = d.ApprovalTimeout
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = d.MaxDepth
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = d.DefaultMaxTokens
	}
	return cfg
}
