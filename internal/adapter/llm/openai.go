package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/tracer"
)

var _ domain.Provider = (*OpenAIProvider)(nil)

// OpenAIProvider implements domain.Provider for the OpenAI Chat Completions API.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	models ModelTable
	policy ToolPolicy
	deps   Deps
	logger *slog.Logger
}

// NewOpenAIProvider creates an OpenAI provider. SDK retries are disabled.
// A missing API key makes every SendMessage fail with ErrMissingCredential.
func NewOpenAIProvider(cfg config.ProviderConfig, deps Deps, logger *slog.Logger) *OpenAIProvider {
	p := &OpenAIProvider{
		name:   cfg.Name,
		models: modelTableFor(domain.ProviderOpenAI, cfg.ModelRules),
		policy: policyFor(domain.ProviderOpenAI, cfg.BlockedTools),
		deps:   deps,
		logger: logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("openai api key not set, requests will fail", "provider", cfg.Name)
		return p
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	p.client = &client
	return p
}

// Name implements domain.Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// SendMessage implements domain.Provider.
func (p *OpenAIProvider) SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	if p.client == nil {
		return nil, domain.NewDomainError("OpenAIProvider.SendMessage", domain.ErrMissingCredential, "OpenAI API Key is missing")
	}

	ctx, span := tracer.StartSpan(ctx, "llm.openai")
	defer span.End()

	model := p.models.Resolve(agent.Model, agent.Skills, agent.Tools)
	span.SetAttributes(tracer.StringAttr("llm.model", model))

	t := newTurn(p.deps.Router, p.policy, agent)
	t.begin("OpenAI Context Initialized", "Model: "+model)

	installed := installedTools(p.deps.Gateway, agent)
	var msgs []openai.ChatCompletionMessageParamUnion
	if sys := systemInstruction(agent, p.deps.Catalog); sys != "" {
		msgs = append(msgs, openai.SystemMessage(sys))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	for _, tool := range installed {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        openAIFunctionName(tool.Name),
				Description: param.NewOpt(tool.Description),
				Parameters:  openai.FunctionParameters(toolSchema(tool.Parameters)),
			},
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = fmt.Errorf("openai: %w", mapOpenAIError(err))
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("openai: %w: no choices", domain.ErrBackend)
		tracer.RecordError(span, err)
		return nil, err
	}

	msg := resp.Choices[0].Message
	text := msg.Content
	if det, ok := Detect([]Strategy{NativeCall, BracketTag}, openAICalls(msg.ToolCalls, installed), text); ok {
		span.SetAttributes(tracer.StringAttr("llm.tool_strategy", string(det.Strategy)))
		text += t.runCalls(ctx, det)
	}

	usage := &domain.TokenUsage{
		Input:  int(resp.Usage.PromptTokens),
		Output: int(resp.Usage.CompletionTokens),
		Total:  int(resp.Usage.TotalTokens),
	}
	span.SetAttributes(tracer.IntAttr("llm.tokens", usage.Total))
	tracer.SetOK(span)
	p.logger.Debug("llm chat completed", "provider", p.name, "model", model, "tokens", usage.Total)

	return &domain.Response{
		Content: text,
		Trace:   t.finish("Final Response Synthesis"),
		Usage:   usage,
	}, nil
}

// openAIFunctionName makes a gateway tool name legal as an OpenAI function
// name, which may not contain dots.
func openAIFunctionName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// openAICalls maps native tool calls back to gateway names: first through
// the advertised names, then through the alias table.
func openAICalls(toolCalls []openai.ChatCompletionMessageToolCall, installed []domain.GatewayTool) []domain.ToolCall {
	advertised := make(map[string]string, len(installed))
	for _, t := range installed {
		advertised[openAIFunctionName(t.Name)] = t.Name
	}
	var calls []domain.ToolCall
	for _, tc := range toolCalls {
		raw := tc.Function.Name
		if raw == "" {
			continue
		}
		name, ok := advertised[raw]
		if !ok {
			name = NormalizeToolName(raw)
		}
		args := map[string]any{}
		if s := strings.TrimSpace(tc.Function.Arguments); s != "" {
			var parsed map[string]any
			if err := unmarshalLenient(s, &parsed); err == nil && parsed != nil {
				args = parsed
			}
		}
		calls = append(calls, domain.ToolCall{Name: name, Arguments: args, Raw: raw})
	}
	return calls
}

// mapOpenAIError classifies SDK errors by HTTP status.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.StatusCode, []byte(apiErr.Message))
	}
	return fmt.Errorf("%w: %v", domain.ErrBackend, err)
}
