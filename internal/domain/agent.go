package domain

import (
	"context"
	"slices"
	"time"
)

// ProviderKind names a backend family an agent can be bound to.
type ProviderKind string

const (
	ProviderGemini ProviderKind = "gemini"
	ProviderOpenAI ProviderKind = "openai"
	ProviderOllama ProviderKind = "ollama"
)

// Valid reports whether k is one of the known backend families.
func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
		return true
	}
	return false
}

// Agent is a configured persona bound to one backend provider and model.
// Skills and Tools keep insertion order for display; identifiers that do not
// resolve at call time are ignored.
type Agent struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	Description string       `json:"description"`
	Personality string       `json:"personality"`
	Avatar      string       `json:"avatar,omitempty"`
	Provider    ProviderKind `json:"provider"`
	Model       string       `json:"model"`
	Skills      []string     `json:"skills"`
	Tools       []string     `json:"tools"`
	Metrics     AgentMetrics `json:"metrics"`
	CreatedAt   time.Time    `json:"created_at"`
}

// HasSkill reports whether the skill id is installed on the agent.
func (a Agent) HasSkill(id string) bool { return slices.Contains(a.Skills, id) }

// HasTool reports whether the tool id is installed on the agent.
func (a Agent) HasTool(id string) bool { return slices.Contains(a.Tools, id) }

// AgentMetrics is the cumulative token and cost ledger of an agent.
type AgentMetrics struct {
	TotalTokens int          `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
	Details     TokenDetails `json:"details"`
}

// TokenDetails splits cumulative tokens into input and output.
type TokenDetails struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Track returns the metrics with usage added at the given price.
// Totals accumulate; nothing is overwritten.
func (m AgentMetrics) Track(usage TokenUsage, price Pricing) AgentMetrics {
	m.TotalTokens += usage.Input + usage.Output
	m.TotalCost += price.Cost(usage.Input, usage.Output)
	m.Details.Input += usage.Input
	m.Details.Output += usage.Output
	return m
}

// Pricing is a per-million-token rate for one backend.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million"  yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Cost returns the price of the given token counts.
func (p Pricing) Cost(input, output int) float64 {
	return (float64(input)*p.InputPerMillion + float64(output)*p.OutputPerMillion) / 1_000_000
}

// AgentStore persists agents and their message threads.
type AgentStore interface {
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	// UpdateAgent writes everything except metrics.
	UpdateAgent(ctx context.Context, a *Agent) error
	DeleteAgent(ctx context.Context, id string) error
	UpdateMetrics(ctx context.Context, id string, m AgentMetrics) error

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, agentID string) ([]*Message, error)
}
