package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

func strPtr(s string) *string {
	return &s
}

// nodeFixture wires a node handler to a repository that always returns
// the same in-memory session.
func nodeFixture(t *testing.T, selected ...string) (*NodeHandler, *aggregates.Session, *MockSessionRepository, *MockEventPublisher) {
	t.Helper()
	snap := seedSnapshot(t, selected...)
	session := restore(t, snap)

	repo := new(MockSessionRepository)
	pub := new(MockEventPublisher)
	repo.On("GetByID", mock.Anything, valueobjects.SessionID(snap.ID)).Return(session, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishBatch", mock.Anything, mock.Anything).Return(nil)

	metrics := new(MockMetrics)
	metrics.On("IncrementCounter", mock.Anything).Return()

	return NewNodeHandler(repo, pub, metrics, nil, zap.NewNop()), session, repo, pub
}

func TestNodeHandler_AddCustomNode(t *testing.T) {
	ctx := context.Background()
	handler, session, _, pub := nodeFixture(t)

	node, err := handler.HandleAddCustomNode(ctx, commands.AddCustomNodeCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 2, ParentID: "a", Name: "My idea", Description: "hand written",
	})

	require.NoError(t, err)
	assert.True(t, node.IsCustom)
	assert.Equal(t, "My idea", node.Name)
	assert.NotEmpty(t, node.ID)

	children := session.Store().ChildrenOf(2, mustNodeID("a"))
	require.Len(t, children, 3)
	assert.Equal(t, node.ID, children[2].ID().String())
	pub.AssertCalled(t, "PublishBatch", ctx, hasEvent(events.TypeCustomNodeAdded))
}

func TestNodeHandler_AddCustomNode_UnknownLevel(t *testing.T) {
	handler, session, repo, _ := nodeFixture(t)

	_, err := handler.HandleAddCustomNode(context.Background(), commands.AddCustomNodeCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 99, ParentID: "a", Name: "too deep",
	})

	assert.True(t, pkgerrors.IsValidation(err))
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestNodeHandler_UpdateNode(t *testing.T) {
	ctx := context.Background()
	handler, session, _, _ := nodeFixture(t)

	node, err := handler.HandleUpdateNode(ctx, commands.UpdateNodeCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 1, NodeID: "b", Name: strPtr("Renamed"), Info: strPtr("TRL 4"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Renamed", node.Name)
	assert.Equal(t, "TRL 4", node.Info)

	stored, ok := session.Store().FindNode(1, valueobjects.NodeID{}, mustNodeID("b"))
	require.True(t, ok)
	assert.Equal(t, "Renamed", stored.Name())
}

func TestNodeHandler_UpdateNode_Missing(t *testing.T) {
	handler, session, _, _ := nodeFixture(t)

	_, err := handler.HandleUpdateNode(context.Background(), commands.UpdateNodeCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 1, NodeID: "nope", Name: strPtr("x"),
	})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestNodeHandler_RemoveNode_KeepsOrphansUntilPruned(t *testing.T) {
	ctx := context.Background()
	handler, session, _, _ := nodeFixture(t, "a", "a1")

	result, err := handler.HandleRemoveNode(ctx, commands.RemoveNodeCommand{
		UserID: testUser, SessionID: session.ID().String(), Level: 1, NodeID: "a",
	})
	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.Zero(t, result.DroppedLists)

	// the selection is left alone and the children of "a" survive
	assert.Equal(t, []string{"a", "a1"}, session.Path().Strings())
	assert.True(t, session.Store().HasChildren(2, mustNodeID("a")))

	pruned, err := handler.HandlePrune(ctx, commands.PruneOrphansCommand{UserID: testUser, SessionID: session.ID().String()})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned.Dropped)
	assert.False(t, session.Store().HasChildren(2, mustNodeID("a")))
}

func TestNodeHandler_RemoveNode_Cascade(t *testing.T) {
	handler, session, _, _ := nodeFixture(t)

	result, err := handler.HandleRemoveNode(context.Background(), commands.RemoveNodeCommand{
		UserID: testUser, SessionID: session.ID().String(), Level: 1, NodeID: "a", Cascade: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.Equal(t, 1, result.DroppedLists)
	assert.Empty(t, session.Store().Orphans())
}

func TestNodeHandler_RemoveNode_Absent(t *testing.T) {
	handler, session, _, _ := nodeFixture(t)

	result, err := handler.HandleRemoveNode(context.Background(), commands.RemoveNodeCommand{
		UserID: testUser, SessionID: session.ID().String(), Level: 2, ParentID: "a", NodeID: "ghost",
	})
	require.NoError(t, err)
	assert.False(t, result.Removed)
}

func TestNodeHandler_SetLevel(t *testing.T) {
	handler, session, _, _ := nodeFixture(t)

	err := handler.HandleSetLevel(context.Background(), commands.SetLevelCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 2, ParentID: "b",
		Nodes: []commands.NodeInput{
			{ID: "b1", Name: "First"},
			{ID: "b2", Name: "Second", Description: "more"},
		},
	})
	require.NoError(t, err)

	children := session.Store().ChildrenOf(2, mustNodeID("b"))
	require.Len(t, children, 2)
	assert.Equal(t, "b2", children[1].ID().String())
	assert.Equal(t, valueobjects.Level(2), children[1].Level())
}

func TestNodeHandler_SetLevel_DuplicateIDs(t *testing.T) {
	handler, session, repo, _ := nodeFixture(t)

	err := handler.HandleSetLevel(context.Background(), commands.SetLevelCommand{
		UserID: testUser, SessionID: session.ID().String(),
		Level: 1,
		Nodes: []commands.NodeInput{{ID: "x", Name: "X"}, {ID: "x", Name: "X again"}},
	})
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
