package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"agent-foundry/internal/adapter/skill"
	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

func newTestLogger() *slog.Logger { return slog.Default() }

type invocation struct {
	Name string
	Args map[string]any
}

// fakeGateway is an in-memory domain.ToolGateway that records invocations.
type fakeGateway struct {
	mu      sync.Mutex
	tools   []domain.GatewayTool
	results map[string]any
	calls   []invocation
	panicOn string
}

func newFakeGateway(names ...string) *fakeGateway {
	g := &fakeGateway{results: map[string]any{}}
	for _, n := range names {
		g.tools = append(g.tools, domain.GatewayTool{
			ID:          n,
			Name:        n,
			Description: "tool " + n,
			Parameters: domain.ToolParameters{
				Type:       "object",
				Properties: map[string]any{"to": map[string]any{"type": "string"}},
			},
		})
	}
	return g
}

func (g *fakeGateway) Discover(context.Context) error { return nil }

func (g *fakeGateway) All() []domain.GatewayTool {
	return append([]domain.GatewayTool(nil), g.tools...)
}

func (g *fakeGateway) Get(name string) (domain.GatewayTool, bool) {
	for _, t := range g.tools {
		if t.Name == name {
			return t, true
		}
	}
	return domain.GatewayTool{}, false
}

func (g *fakeGateway) Invoke(_ context.Context, name string, args map[string]any) any {
	if name == g.panicOn {
		panic("gateway exploded")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, invocation{Name: name, Args: args})
	if r, ok := g.results[name]; ok {
		return r
	}
	return map[string]any{"status": "ok"}
}

func (g *fakeGateway) invocations() []invocation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]invocation(nil), g.calls...)
}

var testClock = time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

func newTestRouter(gw domain.ToolGateway) *Router {
	return NewRouter(NewRegistry(), gw,
		WithClock(func() time.Time { return testClock }),
		WithRandom(func(int) int { return 7 }),
		WithRouterLogger(newTestLogger()),
	)
}

func newTestDeps(gw *fakeGateway) Deps {
	return Deps{
		Router:  newTestRouter(gw),
		Catalog: skill.NewCatalog(skill.Builtin()...),
		Gateway: gw,
	}
}

// stepTypes flattens a trace to its step types for order assertions.
func stepTypes(steps []domain.TraceStep) []domain.TraceStepType {
	out := make([]domain.TraceStepType, len(steps))
	for i, s := range steps {
		out[i] = s.Type
	}
	return out
}

func stepLabels(steps []domain.TraceStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Label
	}
	return out
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusInternalServerError, domain.ErrBackend},
		{http.StatusBadGateway, domain.ErrBackend},
		{http.StatusBadRequest, domain.ErrBackend},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestMapHTTPErrorTruncatesBody(t *testing.T) {
	err := mapHTTPError(http.StatusBadGateway, []byte(strings.Repeat("x", 4*maxErrorDetail)))
	if len(err.Error()) > maxErrorDetail+64 {
		t.Errorf("error text not truncated: %d bytes", len(err.Error()))
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Errorf("expected an ellipsis, got %q", err.Error()[len(err.Error())-8:])
	}
}

func TestNewHTTPClientTimeouts(t *testing.T) {
	c := NewHTTPClient(config.ProviderConfig{})
	if c.Timeout != defaultConnTimeout+defaultRespTimeout {
		t.Errorf("Timeout = %v", c.Timeout)
	}

	c = NewHTTPClient(config.ProviderConfig{ConnTimeout: time.Second, RespTimeout: 2 * time.Second})
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T", c.Transport)
	}
	if tr.ResponseHeaderTimeout != 2*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v", tr.ResponseHeaderTimeout)
	}
	if tr.MaxIdleConnsPerHost != defaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost = %d", tr.MaxIdleConnsPerHost)
	}
}
