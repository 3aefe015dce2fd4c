package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
	"agent-foundry/internal/infra/tracer"
)

var _ domain.Provider = (*OllamaProvider)(nil)

// Default Ollama timeouts: short connect (local), long response (model loading).
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
	ollamaDefaultBaseURL     = "http://localhost:11434"
)

// OllamaProvider implements domain.Provider against a local Ollama server's
// native generate API. Tools are advertised in the prompt and the model is
// asked to answer with a {"tool": ..., "args": {...}} JSON object.
type OllamaProvider struct {
	name    string
	baseURL string
	client  *http.Client
	models  ModelTable
	policy  ToolPolicy
	deps    Deps
	logger  *slog.Logger
}

// OllamaModel describes a locally available Ollama model.
type OllamaModel struct {
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
}

// NewOllamaProvider creates an Ollama provider. No credential is needed.
func NewOllamaProvider(cfg config.ProviderConfig, deps Deps, logger *slog.Logger) *OllamaProvider {
	ollamaCfg := cfg
	if ollamaCfg.ConnTimeout == 0 {
		ollamaCfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if ollamaCfg.RespTimeout == 0 {
		ollamaCfg.RespTimeout = ollamaDefaultRespTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}

	return &OllamaProvider{
		name:    cfg.Name,
		baseURL: baseURL,
		client:  NewHTTPClient(ollamaCfg),
		models:  modelTableFor(domain.ProviderOllama, cfg.ModelRules),
		policy:  policyFor(domain.ProviderOllama, cfg.BlockedTools),
		deps:    deps,
		logger:  logger,
	}
}

// Name implements domain.Provider.
func (p *OllamaProvider) Name() string { return p.name }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// SendMessage implements domain.Provider.
func (p *OllamaProvider) SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.ollama")
	defer span.End()

	model := p.models.Resolve(agent.Model, agent.Skills, agent.Tools)
	span.SetAttributes(tracer.StringAttr("llm.model", model))

	t := newTurn(p.deps.Router, p.policy, agent)
	t.begin("Local Ollama Initialized", fmt.Sprintf("Connecting to %s with model: %s", p.host(), model))

	installed := installedTools(p.deps.Gateway, agent)
	var skills []domain.Skill
	if p.deps.Catalog != nil {
		skills = p.deps.Catalog.Active(agent.Skills)
	}

	req := ollamaGenerateRequest{
		Model:  model,
		Prompt: ollamaPrompt(agent.Personality, skills, installed, prompt),
	}
	if len(installed) > 0 {
		req.Format = "json"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("Ollama Error: marshal request: %w", err)
	}

	data, err := doJSONRequest(ctx, p.client, p.baseURL+"/api/generate", body, nil)
	if err != nil {
		err = fmt.Errorf("Ollama Error: %w", err)
		tracer.RecordError(span, err)
		return nil, err
	}
	var resp ollamaGenerateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		err = fmt.Errorf("Ollama Error: %w: decode response: %v", domain.ErrBackend, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	content := resp.Response
	if len(installed) > 0 {
		content = p.runToolCall(ctx, t, content, installed)
	}

	usage := &domain.TokenUsage{
		Input:  resp.PromptEvalCount,
		Output: resp.EvalCount,
		Total:  resp.PromptEvalCount + resp.EvalCount,
	}
	span.SetAttributes(tracer.IntAttr("llm.tokens", usage.Total))
	tracer.SetOK(span)
	p.logger.Debug("llm chat completed", "provider", p.name, "model", model, "tokens", usage.Total)

	return &domain.Response{
		Content: content,
		Trace:   t.finish("Output Generated"),
		Usage:   usage,
	}, nil
}

// runToolCall looks for an embedded JSON tool call in text. A resolved call
// replaces the reply with its result; anything unresolvable keeps text as is.
func (p *OllamaProvider) runToolCall(ctx context.Context, t *turn, text string, installed []domain.GatewayTool) string {
	det, ok := Detect([]Strategy{EmbeddedJSON}, nil, text)
	if !ok {
		return text
	}
	call := det.Calls[0]

	name, resolved := ResolveToolName(call.Name, installed)
	if !resolved {
		name = call.Name
	} else if name != call.Name {
		p.logger.Debug("tool name corrected", "from", call.Name, "to", name)
	}

	if t.policy.Blocked(call.Raw, call.Name, name) {
		return t.blocked(call.Name)
	}
	if !resolved {
		p.logger.Warn("unknown tool requested, execution skipped", "tool", call.Name)
		return text
	}

	t.step("Tool Invocation", domain.StepTool, "Model calling: "+name)
	result := t.router.ExecuteTool(ctx, name, call.Arguments)
	if te, ok := domain.AsToolError(result); ok {
		t.step("Tool Error", domain.StepTool, "Failed: "+te.Error)
		return "[Tool Error]: " + te.Error
	}
	t.step("Tool Execution", domain.StepTool, "Result: "+preview(result)+"...")
	return "[Tool Result] " + marshalJSON(result, true)
}

const ollamaToolInstructions = `
[SYSTEM] You have access to the following tools.
To invoke a tool, output a JSON object in this format: {"tool": "tool_name", "args": { ... }}

[CRITICAL INSTRUCTION]
1. You may converse with the user normally.
2. ONLY output the JSON when you are fully ready to execute the action.
3. If an SOP requires you to Show a Draft or Ask Confirmation, do that using normal text first. DO NOT output JSON until the user confirms.

[DECISION PROCESS]
When handling complex tasks, you MUST display your reasoning process before taking action.
Format your reasoning like this:
[Thought] Analyzing user request...
[Plan] 1. Check data... 2. Use tool...
[Action] outputting JSON...

CRITICAL: Do not stop after the Plan. You MUST immediately generate the Tool JSON.

Available Tools:
`

// ollamaPrompt builds the single prompt string sent to the generate API.
func ollamaPrompt(personality string, skills []domain.Skill, tools []domain.GatewayTool, prompt string) string {
	var sys strings.Builder

	var protocols []string
	for _, s := range skills {
		if s.Instruction != "" {
			protocols = append(protocols, "- ["+s.Name+" Protocol]: "+s.Instruction)
		}
	}
	if len(protocols) > 0 {
		sys.WriteString("\n[CRITICAL OPERATIONAL PROTOCOLS]\n" + strings.Join(protocols, "\n") + "\n")
	}

	if len(tools) > 0 {
		descs := make([]string, 0, len(tools))
		for _, t := range tools {
			descs = append(descs, "- "+t.Name+": "+marshalJSON(t.Parameters, false))
		}
		sys.WriteString(ollamaToolInstructions + strings.Join(descs, "\n") + "\n")
	}

	return personality + "\n" + sys.String() + "\n\nUser: " + prompt
}

func (p *OllamaProvider) host() string {
	if u, err := url.Parse(p.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return p.baseURL
}

// ListModels returns the locally available Ollama models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, body)
	}

	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Models, nil
}

// IsHealthy checks if the Ollama server is reachable.
func (p *OllamaProvider) IsHealthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return false
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	httpResp.Body.Close()
	return httpResp.StatusCode == http.StatusOK
}
