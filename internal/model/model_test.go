package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	want := &Anthropic{}
	r.Register("anthropic", want)
	got, err := r.Get("anthropic")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		body string
		want FailureReason
	}{
		{429, "", ReasonRateLimit},
		{401, "", ReasonAuth},
		{403, "", ReasonAuth},
		{402, "", ReasonQuotaExhausted},
		{400, "insufficient_quota", ReasonQuotaExhausted},
		{500, "", ReasonServerError},
		{503, "", ReasonServerError},
		{408, "", ReasonTimeout},
		{400, "", ReasonInvalidRequest},
		{200, "", ReasonUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyHTTPStatus(c.code, c.body))
	}
}

func TestIsCredentialError(t *testing.T) {
	err := &ProviderError{Provider: "anthropic", Reason: ReasonAuth}
	assert.True(t, IsCredentialError(err))

	other := &ProviderError{Provider: "anthropic", Reason: ReasonServerError}
	assert.False(t, IsCredentialError(other))
}
