package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Save(ctx context.Context, session *aggregates.Session) error {
	args := m.Called(ctx, session)
	if args.Error(0) == nil {
		session.MarkPersisted()
	}
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id valueobjects.SessionID) (*aggregates.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Session), args.Error(1)
}

func (m *MockSessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*aggregates.Session, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]*aggregates.Session), args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id valueobjects.SessionID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockTreeRepository struct {
	mock.Mock
}

func (m *MockTreeRepository) SaveTree(ctx context.Context, tree *ports.SavedTree) error {
	args := m.Called(ctx, tree)
	return args.Error(0)
}

func (m *MockTreeRepository) GetTree(ctx context.Context, id valueobjects.TreeID) (*ports.SavedTree, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SavedTree), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

type MockTreeGenerator struct {
	mock.Mock
}

func (m *MockTreeGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(aggregates.GenerationResult), args.Error(1)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) IncrementCounter(name string) {
	m.Called(name)
}

func (m *MockMetrics) RecordGeneration(scope, outcome string) {
	m.Called(scope, outcome)
}
