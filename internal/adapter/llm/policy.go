package llm

import (
	"slices"

	"agent-foundry/internal/domain"
)

// blockedMessage is the synthetic result returned for a refused tool call.
const blockedMessage = "Web search is currently unavailable. Please ask the user."

// ToolPolicy refuses configured tool names regardless of installation.
type ToolPolicy struct {
	blocked []string
}

// NewToolPolicy blocks the given tool names.
func NewToolPolicy(blocked ...string) ToolPolicy {
	return ToolPolicy{blocked: slices.Clone(blocked)}
}

// DefaultBlockedTools returns the tools a backend refuses by default.
func DefaultBlockedTools(kind domain.ProviderKind) []string {
	if kind == domain.ProviderOllama {
		return []string{domain.ToolWebSearch}
	}
	return nil
}

// policyFor applies the config convention: nil keeps the backend default,
// an explicit empty list blocks nothing.
func policyFor(kind domain.ProviderKind, configured []string) ToolPolicy {
	if configured == nil {
		return NewToolPolicy(DefaultBlockedTools(kind)...)
	}
	return NewToolPolicy(configured...)
}

// Blocked reports whether any of names is refused. Callers pass every form
// a call went by (as emitted, aliased, resolved).
func (p ToolPolicy) Blocked(names ...string) bool {
	return slices.ContainsFunc(names, func(n string) bool {
		return n != "" && slices.Contains(p.blocked, n)
	})
}

// BlockedResult is the fixed result of a refused call.
func BlockedResult() domain.ToolError {
	return domain.ToolError{Error: blockedMessage}
}
