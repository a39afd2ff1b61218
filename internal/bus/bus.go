// Package bus implements the in-process publish/subscribe broker that
// fans monitoring events out to live subscribers. Delivery is synchronous
// and best-effort: a failing handler is logged and skipped, never
// propagated to the publisher.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives one published event. Handlers run on the publisher's
// goroutine, in registration order.
type Handler func(eventType string, payload map[string]any)

// Subscription identifies one handler registration. The zero value is
// never a valid subscription.
type Subscription struct {
	eventType string
	id        uint64
}

// EventBus is the in-process broker keyed by event-type string.
type EventBus interface {
	// Publish invokes every handler currently registered for eventType,
	// in registration order. A panicking handler is logged and skipped;
	// delivery continues with the remaining handlers.
	Publish(eventType string, payload map[string]any)

	// Subscribe appends handler to eventType's list and returns a token
	// for Unsubscribe. Registering the same handler twice yields two
	// independent registrations, each invoked per publish.
	Subscribe(eventType string, handler Handler) Subscription

	// Unsubscribe removes the registration identified by sub, if still
	// present. A stale token is a no-op.
	Unsubscribe(sub Subscription)

	// SubscriberCount returns the number of registrations for eventType.
	SubscriberCount(eventType string) int

	// Clear removes all registrations for eventType.
	Clear(eventType string)

	// ClearAll removes every registration process-wide.
	ClearAll()
}

type registration struct {
	id      uint64
	handler Handler
}

type eventBus struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string][]registration
}

// New creates an EventBus. The logger records handler failures; it may be
// zap.NewNop() in tests.
func New(logger *zap.Logger) EventBus {
	return &eventBus{
		logger: logger,
		subs:   make(map[string][]registration),
	}
}

func (b *eventBus) Publish(eventType string, payload map[string]any) {
	// Snapshot under the lock, invoke outside it. A slow or re-entrant
	// handler must not block unrelated publish/subscribe calls, at the
	// accepted cost that a handler may still see an event after a
	// concurrent Unsubscribe.
	b.mu.Lock()
	snapshot := make([]registration, len(b.subs[eventType]))
	copy(snapshot, b.subs[eventType])
	b.mu.Unlock()

	for _, reg := range snapshot {
		b.invoke(reg, eventType, payload)
	}
}

func (b *eventBus) invoke(reg registration, eventType string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", eventType),
				zap.Any("panic", r),
			)
		}
	}()
	reg.handler(eventType, payload)
}

func (b *eventBus) Subscribe(eventType string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], registration{id: b.nextID, handler: handler})
	return Subscription{eventType: eventType, id: b.nextID}
}

func (b *eventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.subs[sub.eventType]
	for i, reg := range regs {
		if reg.id == sub.id {
			b.subs[sub.eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

func (b *eventBus) SubscriberCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[eventType])
}

func (b *eventBus) Clear(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, eventType)
}

func (b *eventBus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]registration)
}
