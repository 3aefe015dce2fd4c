package llm

import (
	"slices"
	"strings"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

// ModelRule substitutes a model identifier when all of its set predicates hold.
type ModelRule struct {
	ModelEmpty    bool
	ModelContains string
	AnySkill      []string
	AnyTool       []string
	Replace       string
}

func (r ModelRule) matches(model string, skills, tools []string) bool {
	if r.ModelEmpty && model != "" {
		return false
	}
	if r.ModelContains != "" && !strings.Contains(model, r.ModelContains) {
		return false
	}
	if len(r.AnySkill) > 0 && !containsAny(skills, r.AnySkill) {
		return false
	}
	if len(r.AnyTool) > 0 && !containsAny(tools, r.AnyTool) {
		return false
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// ModelTable is an ordered substitution table; the first matching rule wins.
type ModelTable []ModelRule

// Resolve returns the model to call for the agent's configured model,
// skills and tools. It is pure.
func (t ModelTable) Resolve(model string, skills, tools []string) string {
	for _, r := range t {
		if r.matches(model, skills, tools) {
			return r.Replace
		}
	}
	return model
}

// DefaultModelTable returns the built-in substitution table for a backend.
func DefaultModelTable(kind domain.ProviderKind) ModelTable {
	switch kind {
	case domain.ProviderGemini:
		return ModelTable{
			{AnyTool: []string{domain.ToolGoogleMaps}, Replace: "gemini-2.0-flash-exp"},
			{AnySkill: []string{"code_gen", domain.SkillDeepReasoning}, Replace: "gemini-2.0-flash"},
			{ModelEmpty: true, Replace: "gemini-2.0-flash"},
			{ModelContains: "1.5-flash", Replace: "gemini-2.0-flash"},
		}
	case domain.ProviderOpenAI:
		return ModelTable{
			{ModelEmpty: true, Replace: "gpt-4o-mini"},
			{ModelContains: "gpt-3.5", Replace: "gpt-4o-mini"},
		}
	case domain.ProviderOllama:
		return ModelTable{
			{ModelEmpty: true, Replace: "llama3.1"},
		}
	}
	return nil
}

// modelTableFor returns the configured table, or the backend default when
// the provider config has no rules.
func modelTableFor(kind domain.ProviderKind, rules []config.ModelRuleConfig) ModelTable {
	if len(rules) == 0 {
		return DefaultModelTable(kind)
	}
	t := make(ModelTable, 0, len(rules))
	for _, r := range rules {
		t = append(t, ModelRule{
			ModelEmpty:    r.ModelEmpty,
			ModelContains: r.ModelContains,
			AnySkill:      r.AnySkill,
			AnyTool:       r.AnyTool,
			Replace:       r.Replace,
		})
	}
	return t
}
