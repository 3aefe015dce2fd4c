package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

type ollamaServer struct {
	srv      *httptest.Server
	generate atomic.Int32
	last     atomic.Value
}

// newOllamaServer answers /api/generate with reply, /api/tags with two
// models and / with the usual liveness banner.
func newOllamaServer(t *testing.T, status int, reply string) *ollamaServer {
	t.Helper()
	om := &ollamaServer{}
	om.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			om.generate.Add(1)
			var req ollamaGenerateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				om.last.Store(req)
			}
			w.WriteHeader(status)
			if status == http.StatusOK {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"response":          reply,
					"prompt_eval_count": 30,
					"eval_count":        12,
				})
				return
			}
			_, _ = io.WriteString(w, reply)
		case "/api/tags":
			_, _ = io.WriteString(w, `{"models": [
				{"name": "llama3.1:latest", "size": 4661224676, "digest": "abc", "modified_at": "2026-01-02T03:04:05Z"},
				{"name": "qwen2.5:7b", "size": 4683087332}
			]}`)
		case "/":
			_, _ = io.WriteString(w, "Ollama is running")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(om.srv.Close)
	return om
}

func (om *ollamaServer) request(t *testing.T) ollamaGenerateRequest {
	t.Helper()
	req, ok := om.last.Load().(ollamaGenerateRequest)
	require.True(t, ok, "no generate request captured")
	return req
}

func newTestOllama(baseURL string, gw *fakeGateway) *OllamaProvider {
	return NewOllamaProvider(config.ProviderConfig{Name: "ollama", Type: "ollama", BaseURL: baseURL}, newTestDeps(gw), newTestLogger())
}

func TestOllamaPlainReply(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, `{"tool": "email_send", "args": {"to": "x"}}`)
	gw := newFakeGateway("email.send")
	p := newTestOllama(srv.srv.URL, gw)

	resp, err := p.SendMessage(context.Background(), "hi", domain.Agent{Personality: "Be kind."})
	require.NoError(t, err)

	assert.Equal(t, `{"tool": "email_send", "args": {"to": "x"}}`, resp.Content, "no installed tools means no detection")
	assert.Empty(t, gw.invocations())
	assert.Equal(t, []domain.TraceStepType{domain.StepInit, domain.StepPlan, domain.StepFinal}, stepTypes(resp.Trace))
	assert.Equal(t, "Output Generated", resp.Trace[2].Label)
	assert.Equal(t, domain.TokenUsage{Input: 30, Output: 12, Total: 42}, *resp.Usage)
	assert.Nil(t, resp.Sources)

	req := srv.request(t)
	assert.Equal(t, "llama3.1", req.Model)
	assert.False(t, req.Stream)
	assert.Empty(t, req.Format)
	assert.Equal(t, "Be kind.\n\n\nUser: hi", req.Prompt)
}

func TestOllamaInitStepNamesHostAndModel(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, "ok")
	p := newTestOllama(srv.srv.URL, newFakeGateway())

	resp, err := p.SendMessage(context.Background(), "hi", domain.Agent{Model: "qwen2.5"})
	require.NoError(t, err)

	host := strings.TrimPrefix(srv.srv.URL, "http://")
	assert.Equal(t, "Local Ollama Initialized", resp.Trace[0].Label)
	assert.Equal(t, "Connecting to "+host+" with model: qwen2.5", resp.Trace[0].Detail)
}

func TestOllamaEmbeddedToolCall(t *testing.T) {
	reply := "[Thought] The user wants an email.\n[Action] {\"tool\": \"email_send\", \"args\": {\"to\": \"x\"}}"
	srv := newOllamaServer(t, http.StatusOK, reply)
	gw := newFakeGateway("email.send")
	gw.results["email.send"] = map[string]any{"sent": true}
	p := newTestOllama(srv.srv.URL, gw)

	agent := domain.Agent{Skills: []string{"email_drafter"}, Tools: []string{"email.send"}}
	resp, err := p.SendMessage(context.Background(), "mail x", agent)
	require.NoError(t, err)

	assert.Equal(t, []invocation{{Name: "email.send", Args: map[string]any{"to": "x"}}}, gw.invocations())
	assert.Equal(t, "[Tool Result] {\n  \"sent\": true\n}", resp.Content)
	assert.Equal(t, []string{
		"Local Ollama Initialized", "Strategic Planning",
		"Tool Invocation", "Tool Execution",
		"Output Generated",
	}, stepLabels(resp.Trace))

	req := srv.request(t)
	assert.Equal(t, "json", req.Format)
	drafter, ok := p.deps.Catalog.Get("email_drafter")
	require.True(t, ok)
	assert.Contains(t, req.Prompt, "[CRITICAL OPERATIONAL PROTOCOLS]")
	assert.Contains(t, req.Prompt, drafter.Instruction)
	assert.Contains(t, req.Prompt, `- email.send: {"type":"object","properties":{"to":{"type":"string"}}}`)
	assert.True(t, strings.HasSuffix(req.Prompt, "\n\nUser: mail x"))
}

func TestOllamaToolErrorReplacesContent(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, `{"tool": "email.send", "args": {}}`)
	gw := newFakeGateway("email.send")
	gw.results["email.send"] = domain.ToolError{Error: "Gateway Error: 502 bad gateway"}
	p := newTestOllama(srv.srv.URL, gw)

	resp, err := p.SendMessage(context.Background(), "mail", domain.Agent{Tools: []string{"email.send"}})
	require.NoError(t, err)
	assert.Equal(t, "[Tool Error]: Gateway Error: 502 bad gateway", resp.Content)
	assert.Equal(t, "Failed: Gateway Error: 502 bad gateway", resp.Trace[3].Detail)
}

func TestOllamaBlocksWebSearch(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, `{"tool": "web_search", "args": {"query": "news"}}`)
	gw := newFakeGateway("email.send")
	p := newTestOllama(srv.srv.URL, gw)

	agent := domain.Agent{Tools: []string{"email.send", domain.ToolWebSearch}}
	resp, err := p.SendMessage(context.Background(), "news?", agent)
	require.NoError(t, err)

	assert.Empty(t, gw.invocations(), "blocked calls never reach the gateway")
	assert.Equal(t, `[System] {"error":"Web search is currently unavailable. Please ask the user."}`, resp.Content)
	assert.Equal(t, "Tool Blocked", resp.Trace[2].Label)
}

func TestOllamaUnknownToolKeepsText(t *testing.T) {
	reply := `{"tool": "weather", "args": {"city": "Oslo"}}`
	srv := newOllamaServer(t, http.StatusOK, reply)
	gw := newFakeGateway("email.send")
	p := newTestOllama(srv.srv.URL, gw)

	resp, err := p.SendMessage(context.Background(), "weather?", domain.Agent{Tools: []string{"email.send"}})
	require.NoError(t, err)
	assert.Equal(t, reply, resp.Content)
	assert.Empty(t, gw.invocations())
	assert.Equal(t, []domain.TraceStepType{domain.StepInit, domain.StepPlan, domain.StepFinal}, stepTypes(resp.Trace))
}

func TestOllamaDeepReasoningTrace(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, "considered answer")
	p := newTestOllama(srv.srv.URL, newFakeGateway())

	resp, err := p.SendMessage(context.Background(), "why?", domain.Agent{Skills: []string{domain.SkillDeepReasoning}})
	require.NoError(t, err)
	assert.Equal(t, []domain.TraceStepType{
		domain.StepInit, domain.StepPlan, domain.StepThink, domain.StepInit, domain.StepFinal,
	}, stepTypes(resp.Trace))
}

func TestOllamaServerError(t *testing.T) {
	srv := newOllamaServer(t, http.StatusInternalServerError, `{"error": "model not loaded"}`)
	p := newTestOllama(srv.srv.URL, newFakeGateway())

	resp, err := p.SendMessage(context.Background(), "hi", domain.Agent{})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, strings.HasPrefix(err.Error(), "Ollama Error: "))
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Equal(t, int32(1), srv.generate.Load())
}

func TestOllamaListModelsAndHealth(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK, "")
	p := newTestOllama(srv.srv.URL, newFakeGateway())

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.1:latest", models[0].Name)
	assert.Equal(t, int64(4661224676), models[0].Size)
	assert.Equal(t, "qwen2.5:7b", models[1].Name)
	assert.True(t, p.IsHealthy(context.Background()))

	srv.srv.Close()
	assert.False(t, p.IsHealthy(context.Background()))
	_, err = p.ListModels(context.Background())
	assert.Error(t, err)
}

func TestOllamaDefaults(t *testing.T) {
	p := NewOllamaProvider(config.ProviderConfig{Name: "local"}, newTestDeps(newFakeGateway()), newTestLogger())
	assert.Equal(t, "local", p.Name())
	assert.Equal(t, "localhost:11434", p.host())
	assert.Equal(t, ollamaDefaultConnTimeout+ollamaDefaultRespTimeout, p.client.Timeout)
}
