package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureReason classifies a provider call failure; internal/orchestrator's
// error classifier (§7) maps each reason onto one of its five kinds.
type FailureReason string

const (
	ReasonRateLimit      FailureReason = "rate_limit"
	ReasonServerError    FailureReason = "server_error"
	ReasonTimeout        FailureReason = "timeout"
	ReasonAuth           FailureReason = "auth"
	ReasonQuotaExhausted FailureReason = "quota_exhausted"
	ReasonInvalidRequest FailureReason = "invalid_request"
	ReasonUnknown        FailureReason = "unknown"
)

// ProviderError wraps a classified provider failure so the orchestrator
// can map it onto §7's Transient/Permanent/Fatal taxonomy without
// knowing which provider produced it.
type ProviderError struct {
	Provider string
	Reason   FailureReason
	HTTPCode int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model: %s: %s (http %d): %v", e.Provider, e.Reason, e.HTTPCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassifyHTTPStatus maps a provider's HTTP status code to a
// FailureReason, the shared logic every provider adapter calls so the
// mapping from wire errors to the closed taxonomy lives in one place.
func ClassifyHTTPStatus(code int, body string) FailureReason {
	lower := strings.ToLower(body)
	switch {
	case code == http.StatusTooManyRequests:
		return ReasonRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ReasonAuth
	case code == http.StatusPaymentRequired || strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient_quota"):
		return ReasonQuotaExhausted
	case code >= 500:
		return ReasonServerError
	case code == http.StatusRequestTimeout:
		return ReasonTimeout
	case code >= 400:
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// IsCredentialError reports whether err indicates a missing or invalid
// credential, the Fatal case §4.4 calls out explicitly
// ("UnsupportedModelProvider... credential not found").
func IsCredentialError(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Reason == ReasonAuth
	}
	return strings.Contains(strings.ToLower(err.Error()), "credential not found")
}
