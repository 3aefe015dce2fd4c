package domain

import "context"

// Platform tool identifiers with special handling in adapters.
const (
	ToolWebSearch  = "web_search"
	ToolGoogleMaps = "google_maps"
)

// PlatformTool is an entry of the static platform tool catalog.
type PlatformTool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
}

// ToolParameters is the JSON-schema-like argument description of a gateway tool.
type ToolParameters struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// DefaultToolParameters is used when the gateway omits a schema.
func DefaultToolParameters() ToolParameters {
	return ToolParameters{Type: "object", Properties: map[string]any{}}
}

// GatewayTool is a tool descriptor discovered from the tool gateway.
type GatewayTool struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolError is the value returned in place of a tool result when the call fails.
type ToolError struct {
	Error string `json:"error"`
}

// AsToolError reports whether v is a tool failure value.
func AsToolError(v any) (*ToolError, bool) {
	switch e := v.(type) {
	case ToolError:
		return &e, true
	case *ToolError:
		return e, e != nil
	}
	return nil, false
}

// ToolCall is a resolved request from a backend to run one tool.
type ToolCall struct {
	Name      string
	Arguments map[string]any
	// Raw is the name the backend used before normalization.
	Raw string
}

// ToolGateway discovers and invokes remote tools.
type ToolGateway interface {
	Discover(ctx context.Context) error
	All() []GatewayTool
	Get(name string) (GatewayTool, bool)
	// Invoke never returns a Go error; failures come back as ToolError.
	Invoke(ctx context.Context, name string, args map[string]any) any
}
