package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

func TestDefaultModelTables(t *testing.T) {
	tests := []struct {
		kind   domain.ProviderKind
		model  string
		skills []string
		tools  []string
		want   string
	}{
		{domain.ProviderGemini, "", nil, nil, "gemini-2.0-flash"},
		{domain.ProviderGemini, "gemini-1.5-flash", nil, nil, "gemini-2.0-flash"},
		{domain.ProviderGemini, "gemini-1.5-flash-latest", nil, nil, "gemini-2.0-flash"},
		{domain.ProviderGemini, "gemini-1.5-pro", nil, nil, "gemini-1.5-pro"},
		{domain.ProviderGemini, "gemini-1.5-pro", []string{"code_gen"}, nil, "gemini-2.0-flash"},
		{domain.ProviderGemini, "gemini-1.5-pro", []string{"deep_reasoning"}, nil, "gemini-2.0-flash"},
		{domain.ProviderGemini, "gemini-1.5-pro", []string{"deep_reasoning"}, []string{"google_maps"}, "gemini-2.0-flash-exp"},
		{domain.ProviderGemini, "", nil, []string{"web_search"}, "gemini-2.0-flash"},
		{domain.ProviderOpenAI, "", nil, nil, "gpt-4o-mini"},
		{domain.ProviderOpenAI, "gpt-3.5-turbo", nil, nil, "gpt-4o-mini"},
		{domain.ProviderOpenAI, "gpt-4o", []string{"code_gen"}, nil, "gpt-4o"},
		{domain.ProviderOllama, "", nil, nil, "llama3.1"},
		{domain.ProviderOllama, "qwen2.5", nil, []string{"google_maps"}, "qwen2.5"},
	}
	for _, tt := range tests {
		got := DefaultModelTable(tt.kind).Resolve(tt.model, tt.skills, tt.tools)
		assert.Equal(t, tt.want, got, "%s %q skills=%v tools=%v", tt.kind, tt.model, tt.skills, tt.tools)
	}
}

func TestModelTableFromConfig(t *testing.T) {
	table := modelTableFor(domain.ProviderOpenAI, []config.ModelRuleConfig{
		{ModelContains: "gpt-4", AnySkill: []string{"code_gen"}, Replace: "gpt-4.1"},
		{ModelEmpty: true, Replace: "gpt-4o"},
	})

	assert.Equal(t, "gpt-4.1", table.Resolve("gpt-4o-mini", []string{"code_gen"}, nil))
	assert.Equal(t, "gpt-4o-mini", table.Resolve("gpt-4o-mini", nil, nil))
	assert.Equal(t, "gpt-4o", table.Resolve("", nil, nil))
	assert.Equal(t, "gpt-3.5-turbo", table.Resolve("gpt-3.5-turbo", nil, nil), "configured rules replace the defaults")

	assert.Equal(t, DefaultModelTable(domain.ProviderOllama), modelTableFor(domain.ProviderOllama, nil))
}

func TestToolPolicy(t *testing.T) {
	assert.True(t, policyFor(domain.ProviderOllama, nil).Blocked("web_search"))
	assert.False(t, policyFor(domain.ProviderOllama, []string{}).Blocked("web_search"))
	assert.False(t, policyFor(domain.ProviderGemini, nil).Blocked("web_search"))
	assert.True(t, policyFor(domain.ProviderOpenAI, []string{"email.send"}).Blocked("email.send"))
	assert.True(t, NewToolPolicy("web_search").Blocked("web_search", "google_search"), "any name form blocks")
	assert.False(t, NewToolPolicy("web_search").Blocked("", "google_search"))
	assert.Equal(t, "Web search is currently unavailable. Please ask the user.", BlockedResult().Error)
}

func TestPricing(t *testing.T) {
	table := DefaultPricing()
	assert.Equal(t, domain.Pricing{InputPerMillion: 0.075, OutputPerMillion: 0.30}, table.For("gemini"))
	assert.Equal(t, domain.Pricing{InputPerMillion: 0.15, OutputPerMillion: 0.60}, table.For("openai"))
	assert.Equal(t, domain.Pricing{}, table.For("ollama"))
	assert.Equal(t, table.For("gemini"), table.For("mystery"))

	cfg := config.LLMConfig{Providers: []config.ProviderConfig{
		{Name: "openai", Pricing: &config.PricingConfig{InputPerMillion: 2.5, OutputPerMillion: 10}},
		{Name: "local"},
	}}
	overlay := PricingFromConfig(cfg)
	assert.Equal(t, domain.Pricing{InputPerMillion: 2.5, OutputPerMillion: 10}, overlay.For("openai"))
	assert.Equal(t, table.For("gemini"), overlay.For("local"))
}

func TestUsageAccumulatesAtGeminiRate(t *testing.T) {
	price := DefaultPricing().For("gemini")
	m := domain.AgentMetrics{}.Track(domain.TokenUsage{Input: 100, Output: 50}, price)

	assert.Equal(t, 150, m.TotalTokens)
	assert.InDelta(t, (100*0.075+50*0.30)/1_000_000, m.TotalCost, 1e-15)

	m = m.Track(domain.TokenUsage{Input: 100, Output: 50}, price)
	assert.Equal(t, 300, m.TotalTokens)
	assert.Equal(t, 200, m.Details.Input)
	assert.InDelta(t, 2*(100*0.075+50*0.30)/1_000_000, m.TotalCost, 1e-15)
}
