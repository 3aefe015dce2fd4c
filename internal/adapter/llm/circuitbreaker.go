package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

var _ domain.Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerProvider wraps a provider with a circuit breaker. When the
// backend fails repeatedly the circuit opens and turns fail fast without
// reaching it. Nothing is retried.
type CircuitBreakerProvider struct {
	inner   domain.Provider
	breaker *gobreaker.CircuitBreaker[*domain.Response]
}

// NewCircuitBreakerProvider wraps inner. Zero config fields use defaults.
func NewCircuitBreakerProvider(inner domain.Provider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[*domain.Response](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Configuration errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || domain.IsConfigError(err)
		},
	})

	return &CircuitBreakerProvider{inner: inner, breaker: cb}
}

// SendMessage implements domain.Provider through the breaker.
func (p *CircuitBreakerProvider) SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	resp, err := p.breaker.Execute(func() (*domain.Response, error) {
		return p.inner.SendMessage(ctx, prompt, agent)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("provider %q circuit open: %w: %w", p.inner.Name(), domain.ErrBackend, err)
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.Provider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current breaker state.
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

// Unwrap returns the wrapped provider.
func (p *CircuitBreakerProvider) Unwrap() domain.Provider { return p.inner }
