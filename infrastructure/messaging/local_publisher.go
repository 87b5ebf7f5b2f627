package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
)

// Handler reacts to a published event
type Handler func(ctx context.Context, event events.DomainEvent) error

// LocalPublisher dispatches events to in-process handlers. It backs
// development runs without an event bus.
type LocalPublisher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewLocalPublisher creates a publisher without subscribers
func NewLocalPublisher(logger *zap.Logger) *LocalPublisher {
	return &LocalPublisher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type; "*" receives every event
func (p *LocalPublisher) Subscribe(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], h)
}

// Publish delivers a single event
func (p *LocalPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.mu.RLock()
	handlers := append(append([]Handler{}, p.handlers[event.GetEventType()]...), p.handlers["*"]...)
	p.mu.RUnlock()

	p.logger.Debug("Event published",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
	)

	// a failing handler does not keep the others from running
	var first error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			p.logger.Warn("Event handler failed",
				zap.String("eventType", event.GetEventType()),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// PublishBatch delivers the events in order
func (p *LocalPublisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	var first error
	for _, event := range domainEvents {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
