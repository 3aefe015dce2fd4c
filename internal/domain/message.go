package domain

import "time"

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of an agent's conversation thread. Immutable once stored.
type Message struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agent_id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Sources   []Source    `json:"sources,omitempty"`
	Trace     []TraceStep `json:"trace,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Source is a grounding citation attached to an assistant reply.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// TokenUsage is what one backend call consumed.
type TokenUsage struct {
	Input  int      `json:"input"`
	Output int      `json:"output"`
	Total  int      `json:"total"`
	Cost   *float64 `json:"cost,omitempty"`
}

// Response is the normalized result of one chat turn through an adapter.
type Response struct {
	Content string      `json:"content"`
	Sources []Source    `json:"sources,omitempty"`
	Trace   []TraceStep `json:"trace"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}
