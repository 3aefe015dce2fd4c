package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/tracer"
)

// stepTimeLayout is the wall-clock format shown on trace steps.
const stepTimeLayout = "3:04:05 PM"

// Router dispatches chat turns to the provider named by the agent and
// supplies the helpers adapters share: trace steps and tool execution.
type Router struct {
	registry        *Registry
	gateway         domain.ToolGateway
	defaultProvider string
	now             func() time.Time
	intN            func(n int) int
	logger          *slog.Logger
}

// RouterOption configures optional Router settings.
type RouterOption func(*Router)

// WithDefaultProvider sets the provider used for agents with no provider.
func WithDefaultProvider(name string) RouterOption {
	return func(r *Router) {
		if name != "" {
			r.defaultProvider = name
		}
	}
}

// WithClock overrides the clock used for step timestamps.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithRandom overrides the source of synthetic step durations.
func WithRandom(intN func(n int) int) RouterOption {
	return func(r *Router) { r.intN = intN }
}

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router over registry that executes tools through gateway.
func NewRouter(registry *Registry, gateway domain.ToolGateway, opts ...RouterOption) *Router {
	r := &Router{
		registry:        registry,
		gateway:         gateway,
		defaultProvider: string(domain.ProviderGemini),
		now:             time.Now,
		intN:            rand.IntN,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds or replaces a provider by name.
func (r *Router) RegisterProvider(name string, p domain.Provider) {
	r.registry.Register(name, p)
}

// Providers returns the registered provider names.
func (r *Router) Providers() []string { return r.registry.List() }

// SendMessage runs one chat turn on the agent's provider. The adapter's
// result is returned unchanged; an unknown provider is never retried.
func (r *Router) SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	name := string(agent.Provider)
	if name == "" {
		name = r.defaultProvider
	}

	ctx, span := tracer.StartSpan(ctx, "llm.send_message")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("llm.provider", name),
		tracer.StringAttr("agent.id", agent.ID),
	)

	p, err := r.registry.Get(name)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError("Router.SendMessage", domain.ErrProviderNotFound, fmt.Sprintf("provider %s not found", name))
	}

	resp, err := p.SendMessage(ctx, prompt, agent)
	if err != nil {
		tracer.RecordError(span, err)
		r.logger.Warn("chat turn failed", "provider", name, "agent", agent.ID, "error", err)
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(tracer.IntAttr("llm.tokens", resp.Usage.Total))
	}
	tracer.SetOK(span)
	return resp, nil
}

// CreateStep builds a completed trace step stamped with the current time and
// a synthetic duration between 10 and 49 ms.
func (r *Router) CreateStep(label string, typ domain.TraceStepType, detail string) domain.TraceStep {
	return domain.TraceStep{
		Label:     label,
		Type:      typ,
		Status:    domain.StepComplete,
		Timestamp: r.now().Format(stepTimeLayout),
		Duration:  fmt.Sprintf("%dms", 10+r.intN(40)),
		Detail:    detail,
	}
}

// ExecuteTool invokes a tool through the gateway. Failures of any kind come
// back as a domain.ToolError value, never as a panic or Go error.
func (r *Router) ExecuteTool(ctx context.Context, toolID string, args map[string]any) (result any) {
	if r.gateway == nil {
		return domain.ToolError{Error: "tool gateway not configured"}
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool execution panicked", "tool", toolID, "panic", rec)
			result = domain.ToolError{Error: fmt.Sprint(rec)}
		}
	}()
	return r.gateway.Invoke(ctx, toolID, args)
}
