package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"agent-foundry/internal/adapter/skill"
	"agent-foundry/internal/domain"
)

// memStore is an in-memory domain.AgentStore.
type memStore struct {
	mu       sync.Mutex
	agents   map[string]*domain.Agent
	order    []string
	messages map[string][]*domain.Message
	failOn   string // method name that returns an error
}

func newMemStore() *memStore {
	return &memStore{agents: map[string]*domain.Agent{}, messages: map[string][]*domain.Message{}}
}

func notFound(op, id string) error {
	return domain.NewDomainError(op, domain.ErrAgentNotFound, id)
}

func cloneAgent(a *domain.Agent) *domain.Agent {
	cp := *a
	cp.Skills = slices.Clone(a.Skills)
	cp.Tools = slices.Clone(a.Tools)
	return &cp
}

func (s *memStore) CreateAgent(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "CreateAgent" {
		return fmt.Errorf("disk full")
	}
	s.agents[a.ID] = cloneAgent(a)
	s.order = append(s.order, a.ID)
	return nil
}

func (s *memStore) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, notFound("mem.GetAgent", id)
	}
	return cloneAgent(a), nil
}

func (s *memStore) ListAgents(context.Context) ([]*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Agent{}
	for _, id := range s.order {
		if a, ok := s.agents[id]; ok {
			out = append(out, cloneAgent(a))
		}
	}
	return out, nil
}

func (s *memStore) UpdateAgent(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.agents[a.ID]
	if !ok {
		return notFound("mem.UpdateAgent", a.ID)
	}
	next := cloneAgent(a)
	next.Metrics = cur.Metrics
	s.agents[a.ID] = next
	return nil
}

func (s *memStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return notFound("mem.DeleteAgent", id)
	}
	delete(s.agents, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) UpdateMetrics(_ context.Context, id string, m domain.AgentMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return notFound("mem.UpdateMetrics", id)
	}
	a.Metrics = m
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[msg.AgentID]; !ok {
		return notFound("mem.AppendMessage", msg.AgentID)
	}
	cp := *msg
	s.messages[msg.AgentID] = append(s.messages[msg.AgentID], &cp)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, agentID string) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages[agentID]), nil
}

// scriptedSender returns a fixed response or error and records prompts.
type scriptedSender struct {
	mu      sync.Mutex
	resp    *domain.Response
	err     error
	prompts []string
	agents  []domain.Agent
}

func (s *scriptedSender) SendMessage(_ context.Context, prompt string, agent domain.Agent) (*domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.agents = append(s.agents, agent)
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.resp
	if s.resp.Usage != nil {
		u := *s.resp.Usage
		cp.Usage = &u
	}
	return &cp, nil
}

type flatPricing map[string]domain.Pricing

func (p flatPricing) For(provider string) domain.Pricing {
	if r, ok := p[provider]; ok {
		return r
	}
	return p["gemini"]
}

var testPricing = flatPricing{
	"gemini": {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"openai": {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"ollama": {},
}

var fixedNow = time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestAgentService(store domain.AgentStore) *AgentService {
	return NewAgentService(store, skill.NewCatalog(skill.Builtin()...), slog.Default(),
		WithAgentIDs(sequentialIDs("agent-")),
		WithAgentClock(func() time.Time { return fixedNow }),
	)
}

func newTestChatService(store domain.AgentStore, sender MessageSender) *ChatService {
	return NewChatService(store, sender, testPricing, slog.Default(),
		WithMessageIDs(sequentialIDs("msg-")),
		WithChatClock(func() time.Time { return fixedNow }),
	)
}
