package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/queries"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

func mustNodeID(s string) valueobjects.NodeID {
	nid, err := valueobjects.NewNodeIDFromString(s)
	if err != nil {
		panic(err)
	}
	return nid
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Save(ctx context.Context, session *aggregates.Session) error {
	return m.Called(ctx, session).Error(0)
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
	return m.Called(ctx, id).Error(0)
}

const owner = "user-1"

func node(t *testing.T, id, name string) *entities.Node {
	t.Helper()
	n, err := entities.NewNode(mustNodeID(id), name, 0)
	require.NoError(t, err)
	return n
}

// exploredSession has levels a/b/c, b1/b2 under b and b2x under b2, with
// b and b2 selected.
func exploredSession(t *testing.T) *aggregates.Session {
	t.Helper()
	s, err := aggregates.NewSession(owner, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadTree("tree-1", "ocean plastics", valueobjects.ModeNeedsFirst, []aggregates.GeneratedLevel{
		{Level: 1, Nodes: []*entities.Node{node(t, "a", "A"), node(t, "b", "B"), node(t, "c", "C")}},
		{Level: 2, Parent: mustNodeID("b"), Nodes: []*entities.Node{node(t, "b1", "B1"), node(t, "b2", "B2")}},
		{Level: 3, Parent: mustNodeID("b2"), Nodes: []*entities.Node{node(t, "b2x", "B2X")}},
	}))
	require.NoError(t, s.Select(1, mustNodeID("b")))
	require.NoError(t, s.Select(2, mustNodeID("b2")))
	s.MarkEventsAsCommitted()
	return s
}

func setup(t *testing.T) (*SessionQueryHandler, *aggregates.Session, *MockSessionRepository) {
	t.Helper()
	session := exploredSession(t)
	repo := new(MockSessionRepository)
	repo.On("GetByID", mock.Anything, session.ID()).Return(session, nil)
	return NewSessionQueryHandler(repo, zap.NewNop()), session, repo
}

func nodeIDs(nodes []entities.NodeData) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestGetSession(t *testing.T) {
	handler, session, _ := setup(t)

	view, err := handler.HandleGetSession(context.Background(), queries.GetSessionQuery{
		UserID: owner, SessionID: session.ID().String(),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "b2"}, view.Path)
	assert.True(t, view.CanUndo)
	assert.False(t, view.CanRedo)
	assert.Equal(t, 6, view.NodeCount)
	assert.Equal(t, "needs-first", view.Mode)
	assert.Empty(t, view.Pending)
}

func TestGetSession_OtherUser(t *testing.T) {
	handler, session, _ := setup(t)

	_, err := handler.HandleGetSession(context.Background(), queries.GetSessionQuery{
		UserID: "intruder", SessionID: session.ID().String(),
	})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestGetLevelView_AllLevels(t *testing.T) {
	handler, session, _ := setup(t)

	result, err := handler.HandleGetLevelView(context.Background(), queries.GetLevelViewQuery{
		UserID: owner, SessionID: session.ID().String(),
	})

	require.NoError(t, err)
	require.Len(t, result.Levels, 3)
	// the selected node leads its list, the rest keep their order
	assert.Equal(t, []string{"b", "a", "c"}, nodeIDs(result.Levels[0].Nodes))
	assert.Equal(t, []string{"b2", "b1"}, nodeIDs(result.Levels[1].Nodes))
	assert.Equal(t, "b", result.Levels[1].ParentID)
	assert.Equal(t, []string{"b2x"}, nodeIDs(result.Levels[2].Nodes))
	assert.Empty(t, result.Levels[2].Selected)
}

func TestGetLevelView_SingleLevel(t *testing.T) {
	handler, session, _ := setup(t)

	result, err := handler.HandleGetLevelView(context.Background(), queries.GetLevelViewQuery{
		UserID: owner, SessionID: session.ID().String(), Level: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Levels, 1)
	assert.Equal(t, "b2", result.Levels[0].Selected)

	// level 4 sits below an unselected level
	result, err = handler.HandleGetLevelView(context.Background(), queries.GetLevelViewQuery{
		UserID: owner, SessionID: session.ID().String(), Level: 4,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Levels)

	_, err = handler.HandleGetLevelView(context.Background(), queries.GetLevelViewQuery{
		UserID: owner, SessionID: session.ID().String(), Level: 42,
	})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestGetNodeInfo_FallsThroughRemovedNode(t *testing.T) {
	handler, session, _ := setup(t)

	info, err := handler.HandleGetNodeInfo(context.Background(), queries.GetNodeInfoQuery{
		UserID: owner, SessionID: session.ID().String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "B2", info.Title)
	assert.Equal(t, 2, info.Level)

	removed, _ := session.RemoveNode(2, mustNodeID("b"), mustNodeID("b2"), false)
	require.True(t, removed)

	info, err = handler.HandleGetNodeInfo(context.Background(), queries.GetNodeInfoQuery{
		UserID: owner, SessionID: session.ID().String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "B", info.Title)
	assert.Equal(t, 1, info.Level)
}

func TestGetNodeInfo_EmptySelection(t *testing.T) {
	handler, session, _ := setup(t)
	session.ClearSelection(1)

	info, err := handler.HandleGetNodeInfo(context.Background(), queries.GetNodeInfoQuery{
		UserID: owner, SessionID: session.ID().String(),
	})
	require.NoError(t, err)
	assert.Empty(t, info.Title)
	assert.Empty(t, info.Description)
}

func TestListSessions_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	session := exploredSession(t)
	repo := new(MockSessionRepository)
	repo.On("ListByUser", ctx, owner, defaultListLimit).Return([]*aggregates.Session{session}, nil)

	handler := NewSessionQueryHandler(repo, zap.NewNop())
	result, err := handler.HandleListSessions(ctx, queries.ListSessionsQuery{UserID: owner})

	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, session.ID().String(), result.Sessions[0].ID)
	assert.Equal(t, 2, result.Sessions[0].Depth)
	repo.AssertExpectations(t)
}
