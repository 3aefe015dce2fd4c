package main

import (
	"context"
	"fmt"
	"log/slog"

	"agent-foundry/internal/adapter/llm"
	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/logger"
)

// LLMComponents holds the router and the pieces the API reads from it.
type LLMComponents struct {
	Router  *llm.Router
	Pricing llm.PricingTable
	// Ollama is the first configured Ollama backend, nil when none is.
	Ollama *llm.OllamaProvider
}

// initLLM builds the router and registers every configured backend under
// its config name, wrapped in a circuit breaker when enabled.
func initLLM(ctx context.Context, cfg *config.Config, catalog domain.SkillCatalog, gw domain.ToolGateway, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()
	router := llm.NewRouter(registry, gw,
		llm.WithDefaultProvider(cfg.LLM.DefaultProvider),
		llm.WithRouterLogger(logger.Component(log, "router")),
	)
	deps := llm.Deps{Router: router, Catalog: catalog, Gateway: gw}

	out := &LLMComponents{Router: router, Pricing: llm.PricingFromConfig(cfg.LLM)}
	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		plog := logger.Component(log, "llm."+pc.Name)

		var provider domain.Provider
		switch domain.ProviderKind(pc.Type) {
		case domain.ProviderGemini:
			p, err := llm.NewGeminiProvider(ctx, pc, deps, plog)
			if err != nil {
				return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
			}
			provider = p
		case domain.ProviderOpenAI:
			provider = llm.NewOpenAIProvider(pc, deps, plog)
		case domain.ProviderOllama:
			p := llm.NewOllamaProvider(pc, deps, plog)
			if out.Ollama == nil {
				out.Ollama = p
			}
			provider = p
		default:
			return nil, domain.NewDomainError("initLLM", domain.ErrProviderNotFound,
				fmt.Sprintf("provider %s has unsupported type %q", pc.Name, pc.Type))
		}

		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cbCfg, plog)
		}
		router.RegisterProvider(pc.Name, provider)
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}
	log.Info("llm providers registered", "providers", router.Providers(), "default", cfg.LLM.DefaultProvider)
	return out, nil
}
