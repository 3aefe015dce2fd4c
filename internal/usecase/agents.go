package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-foundry/internal/domain"
)

// Defaults applied to new agents.
const (
	DefaultProvider = domain.ProviderGemini
	DefaultModel    = "gemini-1.5-flash"
)

// AgentCatalog is the part of the skill catalog that edits an agent's
// installed skills and tools.
type AgentCatalog interface {
	domain.SkillCatalog
	Install(agent domain.Agent, skillID string) (domain.Agent, error)
	Uninstall(agent domain.Agent, skillID string) domain.Agent
	InstallTool(agent domain.Agent, toolID string) domain.Agent
	UninstallTool(agent domain.Agent, toolID string) domain.Agent
}

// AgentService manages agent records.
type AgentService struct {
	store   domain.AgentStore
	catalog AgentCatalog
	locks   *AgentLocker
	events  domain.EventBus
	newID   func() string
	now     func() time.Time
	logger  *slog.Logger
}

// AgentOption configures an AgentService.
type AgentOption func(*AgentService)

// WithAgentIDs overrides agent id generation.
func WithAgentIDs(newID func() string) AgentOption {
	return func(s *AgentService) { s.newID = newID }
}

// WithAgentClock overrides the creation timestamp source.
func WithAgentClock(now func() time.Time) AgentOption {
	return func(s *AgentService) { s.now = now }
}

// WithAgentLocker shares an agent locker with other services.
func WithAgentLocker(l *AgentLocker) AgentOption {
	return func(s *AgentService) { s.locks = l }
}

// WithAgentEvents publishes agent lifecycle events on bus.
func WithAgentEvents(bus domain.EventBus) AgentOption {
	return func(s *AgentService) { s.events = bus }
}

// NewAgentService creates an AgentService.
func NewAgentService(store domain.AgentStore, catalog AgentCatalog, logger *slog.Logger, opts ...AgentOption) *AgentService {
	s := &AgentService{
		store:   store,
		catalog: catalog,
		locks:   NewAgentLocker(),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new agent. Skills listed on a are installed with their
// bundled tools; metrics always start at zero.
func (s *AgentService) Create(ctx context.Context, a domain.Agent) (*domain.Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, domain.NewDomainError("AgentService.Create", domain.ErrInvalidInput, "name must not be empty")
	}
	if a.Provider == "" {
		a.Provider = DefaultProvider
	}
	if !a.Provider.Valid() {
		return nil, domain.NewDomainError("AgentService.Create", domain.ErrInvalidInput, "unknown provider "+string(a.Provider))
	}
	if a.Model == "" && a.Provider == DefaultProvider {
		a.Model = DefaultModel
	}

	skills := a.Skills
	a.Skills = []string{}
	if a.Tools == nil {
		a.Tools = []string{}
	}
	for _, id := range skills {
		var err error
		if a, err = s.catalog.Install(a, id); err != nil {
			return nil, err
		}
	}

	a.ID = s.newID()
	a.Metrics = domain.AgentMetrics{}
	a.CreatedAt = s.now()
	if err := s.store.CreateAgent(ctx, &a); err != nil {
		return nil, domain.WrapOp("AgentService.Create", err)
	}
	s.logger.Info("agent created", "agent", a.ID, "provider", a.Provider, "model", a.Model)
	emit(ctx, s.events, domain.EventAgentCreated, a.ID, map[string]string{
		"provider": string(a.Provider),
		"model":    a.Model,
	})
	return &a, nil
}

// Get returns one agent.
func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// List returns all agents in creation order.
func (s *AgentService) List(ctx context.Context) ([]*domain.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Update replaces the editable fields of agent id with those of a.
// Identity, creation time and metrics are kept.
func (s *AgentService) Update(ctx context.Context, id string, a domain.Agent) (*domain.Agent, error) {
	if a.Provider != "" && !a.Provider.Valid() {
		return nil, domain.NewDomainError("AgentService.Update", domain.ErrInvalidInput, "unknown provider "+string(a.Provider))
	}
	updated, err := s.modify(ctx, id, func(cur domain.Agent) (domain.Agent, error) {
		if name := strings.TrimSpace(a.Name); name != "" {
			cur.Name = name
		}
		cur.Role = a.Role
		cur.Description = a.Description
		cur.Personality = a.Personality
		cur.Avatar = a.Avatar
		if a.Provider != "" {
			cur.Provider = a.Provider
		}
		cur.Model = a.Model
		if a.Skills != nil {
			cur.Skills = a.Skills
		}
		if a.Tools != nil {
			cur.Tools = a.Tools
		}
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	emit(ctx, s.events, domain.EventAgentUpdated, id, map[string]string{
		"provider": string(updated.Provider),
		"model":    updated.Model,
	})
	return updated, nil
}

// Delete removes the agent and its thread.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		return err
	}
	s.logger.Info("agent deleted", "agent", id)
	emit(ctx, s.events, domain.EventAgentDeleted, id, nil)
	return nil
}

// InstallSkill installs a catalog skill and its bundled tools.
func (s *AgentService) InstallSkill(ctx context.Context, id, skillID string) (*domain.Agent, error) {
	a, err := s.modify(ctx, id, func(cur domain.Agent) (domain.Agent, error) {
		return s.catalog.Install(cur, skillID)
	})
	return s.changed(ctx, a, err, domain.EventSkillInstalled, "skill", skillID)
}

// UninstallSkill removes a skill; its bundled tools stay installed.
func (s *AgentService) UninstallSkill(ctx context.Context, id, skillID string) (*domain.Agent, error) {
	a, err := s.modify(ctx, id, func(cur domain.Agent) (domain.Agent, error) {
		return s.catalog.Uninstall(cur, skillID), nil
	})
	return s.changed(ctx, a, err, domain.EventSkillRemoved, "skill", skillID)
}

// InstallTool installs a single tool id.
func (s *AgentService) InstallTool(ctx context.Context, id, toolID string) (*domain.Agent, error) {
	if strings.TrimSpace(toolID) == "" {
		return nil, domain.NewDomainError("AgentService.InstallTool", domain.ErrInvalidInput, "tool id must not be empty")
	}
	a, err := s.modify(ctx, id, func(cur domain.Agent) (domain.Agent, error) {
		return s.catalog.InstallTool(cur, toolID), nil
	})
	return s.changed(ctx, a, err, domain.EventToolInstalled, "tool", toolID)
}

// UninstallTool removes a single tool id.
func (s *AgentService) UninstallTool(ctx context.Context, id, toolID string) (*domain.Agent, error) {
	a, err := s.modify(ctx, id, func(cur domain.Agent) (domain.Agent, error) {
		return s.catalog.UninstallTool(cur, toolID), nil
	})
	return s.changed(ctx, a, err, domain.EventToolRemoved, "tool", toolID)
}

// changed emits typ for a successful install or uninstall.
func (s *AgentService) changed(ctx context.Context, a *domain.Agent, err error, typ domain.EventType, key, value string) (*domain.Agent, error) {
	if err != nil {
		return nil, err
	}
	emit(ctx, s.events, typ, a.ID, map[string]string{key: value})
	return a, nil
}

// Messages returns the agent's thread oldest first.
func (s *AgentService) Messages(ctx context.Context, id string) ([]*domain.Message, error) {
	if _, err := s.store.GetAgent(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}

// modify applies fn to the stored agent under the agent lock and persists
// the result.
func (s *AgentService) modify(ctx context.Context, id string, fn func(domain.Agent) (domain.Agent, error)) (*domain.Agent, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := fn(*cur)
	if err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.Metrics = cur.Metrics
	next.CreatedAt = cur.CreatedAt
	if err := s.store.UpdateAgent(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}
