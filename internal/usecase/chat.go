package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/tracer"
)

// MessageSender routes one chat turn to the agent's backend.
type MessageSender interface {
	SendMessage(ctx context.Context, prompt string, agent domain.Agent) (*domain.Response, error)
}

// Pricer returns the token rate billed for a provider.
type Pricer interface {
	For(provider string) domain.Pricing
}

// ChatService runs chat turns against stored agents and keeps their threads
// and usage ledgers.
type ChatService struct {
	store   domain.AgentStore
	sender  MessageSender
	pricing Pricer
	locks   *AgentLocker
	events  domain.EventBus
	newID   func() string
	now     func() time.Time
	logger  *slog.Logger
}

// ChatOption configures a ChatService.
type ChatOption func(*ChatService)

// WithChatClock overrides the message timestamp source.
func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatService) { s.now = now }
}

// WithMessageIDs overrides message id generation.
func WithMessageIDs(newID func() string) ChatOption {
	return func(s *ChatService) { s.newID = newID }
}

// WithChatLocker shares an agent locker with other services.
func WithChatLocker(l *AgentLocker) ChatOption {
	return func(s *ChatService) { s.locks = l }
}

// WithChatEvents publishes turn outcomes on bus.
func WithChatEvents(bus domain.EventBus) ChatOption {
	return func(s *ChatService) { s.events = bus }
}

// NewChatService creates a ChatService.
func NewChatService(store domain.AgentStore, sender MessageSender, pricing Pricer, logger *slog.Logger, opts ...ChatOption) *ChatService {
	s := &ChatService{
		store:   store,
		sender:  sender,
		pricing: pricing,
		locks:   NewAgentLocker(),
		newID:   func() string { return ulid.Make().String() },
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send appends prompt to the agent's thread, runs the turn and appends the
// reply. A failed turn is stored as an assistant message carrying the error
// text; that message is returned together with the error.
func (s *ChatService) Send(ctx context.Context, agentID, prompt string) (*domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "chat.send")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent.id", agentID))

	if prompt == "" {
		return nil, domain.NewDomainError("ChatService.Send", domain.ErrInvalidInput, "message must not be empty")
	}
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	user := &domain.Message{
		ID:        s.newID(),
		AgentID:   agent.ID,
		Role:      domain.RoleUser,
		Content:   prompt,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, user); err != nil {
		return nil, domain.WrapOp("ChatService.Send", err)
	}

	resp, sendErr := s.sender.SendMessage(ctx, prompt, *agent)
	if sendErr != nil {
		tracer.RecordError(span, sendErr)
		s.logger.Warn("chat turn failed", "agent", agent.ID, "provider", agent.Provider, "error", sendErr)
		reply := &domain.Message{
			ID:        s.newID(),
			AgentID:   agent.ID,
			Role:      domain.RoleAssistant,
			Content:   sendErr.Error(),
			Timestamp: s.now(),
		}
		if err := s.store.AppendMessage(ctx, reply); err != nil {
			s.logger.Error("store failed reply", "agent", agent.ID, "error", err)
		}
		emit(ctx, s.events, domain.EventChatFailed, agent.ID, map[string]string{
			"provider": string(agent.Provider),
			"code":     string(domain.ErrorCodeOf(sendErr)),
		})
		return reply, sendErr
	}

	if resp.Usage != nil {
		if err := s.trackUsage(ctx, agent, resp.Usage); err != nil {
			s.logger.Error("track usage", "agent", agent.ID, "error", err)
		}
	}

	reply := &domain.Message{
		ID:        s.newID(),
		AgentID:   agent.ID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		Sources:   resp.Sources,
		Trace:     resp.Trace,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, reply); err != nil {
		return nil, domain.WrapOp("ChatService.Send", err)
	}
	emit(ctx, s.events, domain.EventChatCompleted, agent.ID, completedDetail(agent, resp))
	tracer.SetOK(span)
	return reply, nil
}

// trackUsage adds usage to the stored metrics at the provider's rate and
// fills in usage.Cost.
func (s *ChatService) trackUsage(ctx context.Context, agent *domain.Agent, usage *domain.TokenUsage) error {
	provider := string(agent.Provider)
	if provider == "" {
		provider = string(domain.ProviderGemini)
	}
	price := s.pricing.For(provider)
	cost := price.Cost(usage.Input, usage.Output)
	usage.Cost = &cost

	unlock, err := s.locks.Lock(ctx, agent.ID)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.store.GetAgent(ctx, agent.ID)
	if err != nil {
		return err
	}
	metrics := current.Metrics.Track(*usage, price)
	if err := s.store.UpdateMetrics(ctx, agent.ID, metrics); err != nil {
		return err
	}
	s.logger.Debug("usage tracked", "agent", agent.ID, "tokens", usage.Input+usage.Output, "cost", cost)
	return nil
}

func completedDetail(agent *domain.Agent, resp *domain.Response) map[string]string {
	d := map[string]string{
		"provider": string(agent.Provider),
		"steps":    strconv.Itoa(len(resp.Trace)),
	}
	if u := resp.Usage; u != nil {
		d["tokens"] = strconv.Itoa(u.Input + u.Output)
		if u.Cost != nil {
			d["cost"] = strconv.FormatFloat(*u.Cost, 'f', -1, 64)
		}
	}
	return d
}

// History returns the agent's thread oldest first.
func (s *ChatService) History(ctx context.Context, agentID string) ([]*domain.Message, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, agentID)
}
