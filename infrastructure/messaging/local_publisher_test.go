package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
)

func TestLocalPublisher_Dispatch(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPublisher(zap.NewNop())

	var typed, all []string
	p.Subscribe(events.TypeSelectionChanged, func(_ context.Context, e events.DomainEvent) error {
		typed = append(typed, e.GetAggregateID())
		return nil
	})
	p.Subscribe("*", func(_ context.Context, e events.DomainEvent) error {
		all = append(all, e.GetEventType())
		return nil
	})

	sel := events.NewSelectionChanged("s-1", "user-1", 1, "a", []string{"a"}, false, 1, time.Now())
	other := events.BaseEvent{AggregateID: "s-2", EventType: events.TypeTreeLoaded}

	assert.NoError(t, p.PublishBatch(ctx, []events.DomainEvent{sel, other}))
	assert.Equal(t, []string{"s-1"}, typed)
	assert.Equal(t, []string{events.TypeSelectionChanged, events.TypeTreeLoaded}, all)
}

func TestLocalPublisher_HandlerErrorDoesNotStopOthers(t *testing.T) {
	p := NewLocalPublisher(zap.NewNop())
	boom := errors.New("boom")

	called := false
	p.Subscribe(events.TypeTreeLoaded, func(context.Context, events.DomainEvent) error { return boom })
	p.Subscribe(events.TypeTreeLoaded, func(context.Context, events.DomainEvent) error {
		called = true
		return nil
	})

	err := p.Publish(context.Background(), events.BaseEvent{EventType: events.TypeTreeLoaded})

	assert.ErrorIs(t, err, boom)
	assert.True(t, called)
}
