package usecase

import (
	"context"

	"agent-foundry/internal/domain"
)

// emit publishes on bus when one is configured.
func emit(ctx context.Context, bus domain.EventBus, typ domain.EventType, agentID string, detail map[string]string) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, domain.Event{Type: typ, AgentID: agentID, Detail: detail})
}
