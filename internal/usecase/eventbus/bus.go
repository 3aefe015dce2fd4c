// Package eventbus is the in-process activity event bus.
package eventbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"agent-foundry/internal/domain"
)

// allEvents keys subscriptions that receive every event type.
const allEvents domain.EventType = "*"

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus delivers each event to its subscribers on separate goroutines.
// Handlers run detached from the publisher's cancellation.
type Bus struct {
	// mu guards subs and closed, and orders wg.Add before Close's Wait.
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscription
	closed bool
	nextID atomic.Uint64
	wg     sync.WaitGroup
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock sets the timestamp source for events published without one.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[domain.EventType][]subscription),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish stamps the event if needed and hands it to the typed
// subscribers, then the catch-all ones. Publishing after Close is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := slices.Concat(b.subs[event.Type], b.subs[allEvents])
	b.wg.Add(len(targets))
	b.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, sub := range targets {
		go b.deliver(ctx, event, sub.handler)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, handler domain.EventHandler) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", string(event.Type), "panic", r)
		}
	}()
	handler(ctx, event)
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(allEvents, handler)
}

func (b *Bus) add(key domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[key] = append(b.subs[key], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[key] = slices.DeleteFunc(b.subs[key], func(s subscription) bool { return s.id == id })
	}
}

// Close stops new publishes and waits for in-flight handlers. It is
// idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
