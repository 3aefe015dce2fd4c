package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/tracer"
)

var _ domain.Provider = (*GeminiProvider)(nil)

// GeminiProvider implements domain.Provider for the Google Gemini API.
// Installed gateway tools are advertised as native function declarations;
// web_search and google_maps map onto Gemini's built-in grounding tools.
type GeminiProvider struct {
	name   string
	client *genai.Client
	models ModelTable
	policy ToolPolicy
	deps   Deps
	logger *slog.Logger
}

// NewGeminiProvider creates a Gemini provider. A missing API key is not an
// error here: every SendMessage fails with ErrMissingCredential instead.
func NewGeminiProvider(ctx context.Context, cfg config.ProviderConfig, deps Deps, logger *slog.Logger) (*GeminiProvider, error) {
	p := &GeminiProvider{
		name:   cfg.Name,
		models: modelTableFor(domain.ProviderGemini, cfg.ModelRules),
		policy: policyFor(domain.ProviderGemini, cfg.BlockedTools),
		deps:   deps,
		logger: logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("gemini api key not set, requests will fail", "provider", cfg.Name)
		return p, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: NewHTTPClient(cfg),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name implements domain.Provider.
func (p *GeminiProvider) Name() string { return p.name }

// SendMessage implements domain.Provider.
func (p *GeminiProvider) SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	if p.client == nil {
		return nil, domain.NewDomainError("GeminiProvider.SendMessage", domain.ErrMissingCredential, "Gemini API Key is missing")
	}

	ctx, span := tracer.StartSpan(ctx, "llm.gemini")
	defer span.End()

	model := p.models.Resolve(agent.Model, agent.Skills, agent.Tools)
	span.SetAttributes(tracer.StringAttr("llm.model", model))

	t := newTurn(p.deps.Router, p.policy, agent)
	t.begin("Gemini Context Initialized", "Model: "+model)

	cfg := &genai.GenerateContentConfig{
		Tools: geminiTools(agent, installedTools(p.deps.Gateway, agent)),
	}
	if sys := systemInstruction(agent, p.deps.Catalog); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(sys)}}
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(prompt)},
	}}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		err = fmt.Errorf("gemini: %w", mapGeminiError(err))
		tracer.RecordError(span, err)
		return nil, err
	}

	text := resp.Text()
	if det, ok := Detect([]Strategy{NativeCall, BracketTag}, geminiCalls(resp), text); ok {
		span.SetAttributes(tracer.StringAttr("llm.tool_strategy", string(det.Strategy)))
		text += t.runCalls(ctx, det)
	}

	usage := geminiUsage(resp)
	span.SetAttributes(tracer.IntAttr("llm.tokens", usage.Total))
	tracer.SetOK(span)
	p.logger.Debug("llm chat completed", "provider", p.name, "model", model, "tokens", usage.Total)

	return &domain.Response{
		Content: text,
		Sources: geminiSources(resp),
		Trace:   t.finish("Final Response Synthesis"),
		Usage:   usage,
	}, nil
}

func geminiTools(agent domain.Agent, installed []domain.GatewayTool) []*genai.Tool {
	var tools []*genai.Tool
	if agent.HasTool(domain.ToolWebSearch) {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if agent.HasTool(domain.ToolGoogleMaps) {
		tools = append(tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
	}
	if len(installed) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(installed))
		for _, t := range installed {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: toolSchema(t.Parameters),
			})
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: decls})
	}
	return tools
}

func geminiCalls(resp *genai.GenerateContentResponse) []domain.ToolCall {
	var calls []domain.ToolCall
	for _, fc := range resp.FunctionCalls() {
		if fc == nil || fc.Name == "" {
			continue
		}
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, domain.ToolCall{Name: NormalizeToolName(fc.Name), Arguments: args, Raw: fc.Name})
	}
	return calls
}

func geminiSources(resp *genai.GenerateContentResponse) []domain.Source {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []domain.Source
	for _, c := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if c == nil || (c.Web == nil && c.Maps == nil) {
			continue
		}
		var title, uri string
		if c.Web != nil {
			title, uri = c.Web.Title, c.Web.URI
		}
		if c.Maps != nil {
			if title == "" {
				title = c.Maps.Title
			}
			if uri == "" {
				uri = c.Maps.URI
			}
		}
		if title == "" {
			title = "Grounding Source"
		}
		if uri == "" {
			uri = "#"
		}
		sources = append(sources, domain.Source{Title: title, URI: uri})
	}
	return sources
}

func geminiUsage(resp *genai.GenerateContentResponse) *domain.TokenUsage {
	u := &domain.TokenUsage{}
	if m := resp.UsageMetadata; m != nil {
		u.Input = int(m.PromptTokenCount)
		u.Output = int(m.CandidatesTokenCount)
		u.Total = int(m.TotalTokenCount)
	}
	return u
}

// mapGeminiError classifies SDK errors by HTTP status.
func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, []byte(apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return mapHTTPError(apiErrPtr.Code, []byte(apiErrPtr.Message))
	}
	return fmt.Errorf("%w: %v", domain.ErrBackend, err)
}
