package llm

import (
	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

// PricingTable maps provider names to per-million-token rates.
type PricingTable map[string]domain.Pricing

// DefaultPricing returns the built-in rates.
func DefaultPricing() PricingTable {
	return PricingTable{
		string(domain.ProviderGemini): {InputPerMillion: 0.075, OutputPerMillion: 0.30},
		string(domain.ProviderOpenAI): {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		string(domain.ProviderOllama): {InputPerMillion: 0, OutputPerMillion: 0},
	}
}

// PricingFromConfig returns the default rates overlaid with any per-provider
// pricing set in cfg.
func PricingFromConfig(cfg config.LLMConfig) PricingTable {
	t := DefaultPricing()
	for _, p := range cfg.Providers {
		if p.Pricing != nil {
			t[p.Name] = domain.Pricing{
				InputPerMillion:  p.Pricing.InputPerMillion,
				OutputPerMillion: p.Pricing.OutputPerMillion,
			}
		}
	}
	return t
}

// For returns the rate for provider; unknown providers are billed at the
// gemini rate.
func (t PricingTable) For(provider string) domain.Pricing {
	if p, ok := t[provider]; ok {
		return p
	}
	if p, ok := t[string(domain.ProviderGemini)]; ok {
		return p
	}
	return DefaultPricing()[string(domain.ProviderGemini)]
}
