// Package toolgateway is the client for the remote tool gateway: it caches
// discovered tool descriptors and invokes tools by name.
package toolgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/tracer"
)

// maxResponseBody caps how much of a gateway response is read.
const maxResponseBody = 10 * 1024 * 1024

const defaultTimeout = 30 * time.Second

// snapshot is an immutable view of the discovered tools.
type snapshot struct {
	tools   []domain.GatewayTool
	byName  map[string]int
	schemas map[string]*jsonschema.Schema
}

func (s *snapshot) get(name string) (domain.GatewayTool, bool) {
	i, ok := s.byName[name]
	if !ok {
		return domain.GatewayTool{}, false
	}
	return s.tools[i], true
}

// Client discovers and invokes gateway tools. Safe for concurrent use:
// discovery swaps the whole registry and readers never see a partial one.
type Client struct {
	cfg     config.ToolGatewayConfig
	http    *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	newID   func() string

	current atomic.Pointer[snapshot]
}

var _ domain.ToolGateway = (*Client)(nil)

// Option configures optional Client dependencies.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRequestIDFunc overrides request id generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(cl *Client) { cl.newID = fn }
}

// New creates a gateway client with an empty registry.
func New(cfg config.ToolGatewayConfig, logger *slog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		newID:  func() string { return "req_" + ulid.Make().String() },
	}
	if cfg.InvokeRatePerMin > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.InvokeRatePerMin)/60.0), cfg.InvokeRatePerMin)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&snapshot{byName: map[string]int{}})
	return c
}

type discoverResponse struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"tools"`
}

// Discover fetches the tool list and replaces the registry. On failure the
// previous registry stays in place and the error is returned for logging.
func (c *Client) Discover(ctx context.Context) error {
	ctx, span := tracer.StartSpan(ctx, "toolgateway.discover")
	defer span.End()

	snap, err := c.fetch(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("tool discovery failed", "error", err, "cached", len(c.All()))
		return domain.NewDomainError("ToolGateway.Discover", domain.ErrGateway, err.Error())
	}
	c.current.Store(snap)
	span.SetAttributes(tracer.IntAttr("toolgateway.tools", len(snap.tools)))
	tracer.SetOK(span)
	c.logger.Info("tools discovered", "count", len(snap.tools))
	return nil
}

func (c *Client) fetch(ctx context.Context) (*snapshot, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/tool_gateway/discover?" +
		url.Values{"tenant_id": {c.cfg.TenantID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.DiscoveryKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("discover returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload discoverResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode discover response: %w", err)
	}

	snap := &snapshot{
		byName:  make(map[string]int, len(payload.Tools)),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, t := range payload.Tools {
		if t.Name == "" {
			continue
		}
		tool := domain.GatewayTool{
			ID:          t.Name,
			Name:        t.Name,
			Description: t.Description,
			Parameters:  parseParameters(t.Parameters),
		}
		if i, dup := snap.byName[t.Name]; dup {
			snap.tools[i] = tool
		} else {
			snap.byName[t.Name] = len(snap.tools)
			snap.tools = append(snap.tools, tool)
		}
		if c.cfg.ValidateArgs {
			if s, err := compileSchema(t.Name, t.Parameters); err != nil {
				c.logger.Warn("schema validation disabled for tool", "tool", t.Name, "error", err)
			} else if s != nil {
				snap.schemas[t.Name] = s
			}
		}
	}
	return snap, nil
}

func parseParameters(raw json.RawMessage) domain.ToolParameters {
	params := domain.DefaultToolParameters()
	if len(raw) == 0 || string(raw) == "null" {
		return params
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return domain.DefaultToolParameters()
	}
	if params.Type == "" {
		params.Type = "object"
	}
	if params.Properties == nil {
		params.Properties = map[string]any{}
	}
	return params
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	res := name + ".json"
	if err := compiler.AddResource(res, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(res)
}

// All returns the discovered tools in discovery order.
func (c *Client) All() []domain.GatewayTool {
	snap := c.current.Load()
	out := make([]domain.GatewayTool, len(snap.tools))
	copy(out, snap.tools)
	return out
}

// Get returns a discovered tool by name.
func (c *Client) Get(name string) (domain.GatewayTool, bool) {
	return c.current.Load().get(name)
}

type invokeRequest struct {
	RequestID string         `json:"request_id"`
	TenantID  string         `json:"tenant_id"`
	AgentID   string         `json:"agent_id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// Invoke calls a tool on the gateway. It returns the unwrapped "result" field
// when present, otherwise the whole payload. Every failure comes back as a
// domain.ToolError value.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) any {
	ctx, span := tracer.StartSpan(ctx, "toolgateway.invoke")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("tool.name", name))

	result, err := c.invoke(ctx, name, args)
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("tool invocation failed", "tool", name, "error", err)
		return domain.ToolError{Error: err.Error()}
	}
	tracer.SetOK(span)
	return result
}

func (c *Client) invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, fmt.Errorf("Tool rate limit exceeded for %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if s, ok := c.current.Load().schemas[name]; ok {
		if err := validateArgs(s, args); err != nil {
			return nil, fmt.Errorf("Invalid arguments for %s: %v", name, err)
		}
	}

	body, err := json.Marshal(invokeRequest{
		RequestID: c.newID(),
		TenantID:  c.cfg.TenantID,
		AgentID:   c.cfg.AgentID,
		Tool:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/tool_gateway/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.InvokeKey)
	req.Header.Set("x-tenant-id", c.cfg.TenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Gateway Error: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var payload any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if m, ok := payload.(map[string]any); ok {
		if r, ok := m["result"]; ok && r != nil {
			return r, nil
		}
	}
	return payload, nil
}

// validateArgs checks args against s. Values are normalized through JSON so
// Go-typed arguments validate the same as decoded ones.
func validateArgs(s *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
