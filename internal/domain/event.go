package domain

import (
	"context"
	"time"
)

// EventType identifies an activity event.
type EventType string

const (
	EventAgentCreated   EventType = "agent.created"
	EventAgentUpdated   EventType = "agent.updated"
	EventAgentDeleted   EventType = "agent.deleted"
	EventSkillInstalled EventType = "skill.installed"
	EventSkillRemoved   EventType = "skill.uninstalled"
	EventToolInstalled  EventType = "tool.installed"
	EventToolRemoved    EventType = "tool.uninstalled"
	EventChatCompleted  EventType = "chat.completed"
	EventChatFailed     EventType = "chat.failed"
)

// Event is one entry of the activity stream.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	AgentID   string            `json:"agent_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// EventHandler receives published events.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans activity events out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for one event type and returns its
	// unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler) func()
	// Close stops new publishes and waits for in-flight handlers.
	Close()
}
