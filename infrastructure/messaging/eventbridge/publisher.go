package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
)

// EventBridge accepts at most 10 entries per PutEvents call
const batchSize = 10

// PutEventsAPI is the part of the EventBridge client the publisher uses
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends domain events to an EventBridge bus. Entries rejected
// by the service are retried with backoff before the batch is reported
// as failed.
type Publisher struct {
	client       PutEventsAPI
	eventBusName string
	source       string
	maxAttempts  int
	backoff      time.Duration
	logger       *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client PutEventsAPI, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		source:       events.SourceBackend,
		maxAttempts:  3,
		backoff:      100 * time.Millisecond,
		logger:       logger,
	}
}

// Publish sends a single event to EventBridge
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends the events in chunks of ten
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for i := 0; i < len(domainEvents); i += batchSize {
		end := i + batchSize
		if end > len(domainEvents) {
			end = len(domainEvents)
		}
		if err := p.publishChunk(ctx, domainEvents[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) entry(event events.DomainEvent) (types.PutEventsRequestEntry, error) {
	detail, err := json.Marshal(event)
	if err != nil {
		return types.PutEventsRequestEntry{}, err
	}
	return types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBusName),
		Source:       aws.String(p.source),
		DetailType:   aws.String(event.GetEventType()),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(event.GetTimestamp()),
		Resources:    []string{fmt.Sprintf("techtree:session/%s", event.GetAggregateID())},
	}, nil
}

func (p *Publisher) publishChunk(ctx context.Context, domainEvents []events.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(domainEvents))
	for _, event := range domainEvents {
		e, err := p.entry(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.Error(err),
				zap.String("eventType", event.GetEventType()),
			)
			continue
		}
		entries = append(entries, e)
	}

	backoff := p.backoff
	for attempt := 1; len(entries) > 0; attempt++ {
		result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
		if err != nil {
			return fmt.Errorf("failed to publish events to EventBridge: %w", err)
		}
		if result.FailedEntryCount == 0 {
			p.logger.Debug("Events published to EventBridge",
				zap.Int("count", len(entries)),
				zap.String("eventBus", p.eventBusName),
			)
			return nil
		}

		// result entries line up with request entries
		failed := make([]types.PutEventsRequestEntry, 0, result.FailedEntryCount)
		for i, res := range result.Entries {
			if res.ErrorCode != nil && i < len(entries) {
				p.logger.Warn("Event rejected by EventBridge",
					zap.String("eventType", aws.ToString(entries[i].DetailType)),
					zap.String("errorCode", aws.ToString(res.ErrorCode)),
					zap.String("errorMessage", aws.ToString(res.ErrorMessage)),
					zap.Int("attempt", attempt),
				)
				failed = append(failed, entries[i])
			}
		}
		if attempt >= p.maxAttempts {
			return fmt.Errorf("%d events failed to publish after %d attempts", len(failed), attempt)
		}
		entries = failed

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
