package domain

import "context"

// Provider is one backend adapter behind the router.
type Provider interface {
	// SendMessage runs a full chat turn for agent, including any tool call.
	SendMessage(ctx context.Context, prompt string, agent Agent) (*Response, error)
	// Name returns the provider's registry name (e.g. "gemini").
	Name() string
}
