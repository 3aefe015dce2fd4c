package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

func failingProvider(err error) *mockProvider {
	return &mockProvider{name: "gemini", send: func(context.Context, string, domain.Agent) (*domain.Response, error) {
		return nil, err
	}}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &mockProvider{name: "gemini"}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := cb.SendMessage(context.Background(), "hi", domain.Agent{})
	require.NoError(t, err)
	assert.Equal(t, "gemini:hi", resp.Content)
	assert.Equal(t, "gemini", cb.Name())
	assert.Same(t, inner, cb.Unwrap())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := failingProvider(errors.New("backend down"))
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour}, newTestLogger())

	for i := 0; i < 2; i++ {
		_, err := cb.SendMessage(context.Background(), "x", domain.Agent{})
		require.EqualError(t, err, "backend down")
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.SendMessage(context.Background(), "x", domain.Agent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), `provider "gemini" circuit open`)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the backend")
}

func TestCircuitBreakerIgnoresConfigErrors(t *testing.T) {
	missing := domain.NewDomainError("GeminiProvider.SendMessage", domain.ErrMissingCredential, "Gemini API Key is missing")
	inner := failingProvider(missing)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 1}, newTestLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.SendMessage(context.Background(), "x", domain.Agent{})
		assert.ErrorIs(t, err, domain.ErrMissingCredential)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, 3, inner.calls)
}
