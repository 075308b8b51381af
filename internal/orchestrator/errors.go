package orchestrator

import (
	"errors"

	"github.com/Unicorn/Radium-sub010/internal/model"
	"github.com/Unicorn/Radium-sub010/internal/policy"
)

// ErrorKind is the closed taxonomy §7 classifies every failure into.
// It is a Go enum, not a custom error framework, mirroring the Rust
// original's approach of wrapping provider errors into a closed set.
type ErrorKind string

const (
	KindTransient    ErrorKind = "transient"
	KindPermanent    ErrorKind = "permanent"
	KindAgentFailure ErrorKind = "agent_failure"
	KindFatal        ErrorKind = "fatal"
	KindUnknown      ErrorKind = "unknown"
)

// Classify maps an error onto §7's taxonomy. Model-provider errors carry
// their own FailureReason (internal/model); approval, credential and
// malformed/unknown-tool errors are matched by their sentinels; anything
// else falls back to Unknown, which §7 treats the same as Permanent.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, policy.ErrApprovalDenied) || errors.Is(err, policy.ErrApprovalExpired) {
		return KindPermanent
	}

	var perr *model.ProviderError
	if errors.As(err, &perr) {
		switch perr.Reason {
		case model.ReasonAuth, model.ReasonQuotaExhausted:
			return KindFatal
		case model.ReasonRateLimit, model.ReasonServerError, model.ReasonTimeout:
			return KindTransient
		case model.ReasonInvalidRequest:
			return KindPermanent
		default:
			return KindUnknown
		}
	}

	if model.IsCredentialError(err) {
		return KindFatal
	}

	if errors.Is(err, ErrMalformedToolCall) || errors.Is(err, ErrUnknownTool) {
		return KindAgentFailure
	}

	return KindUnknown
}

// ErrMalformedToolCall classifies a model response that claims a tool
// call but supplies arguments the tool's schema rejects (§7
// AgentFailure: "the agent returned an ill-formed response").
var ErrMalformedToolCall = errors.New("orchestrator: malformed tool call arguments")

// ErrUnknownTool classifies a model response naming a tool the registry
// doesn't have, the other half of §7's AgentFailure definition.
var ErrUnknownTool = errors.New("orchestrator: unknown tool requested")
