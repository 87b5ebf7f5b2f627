package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
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

func newSession(t *testing.T, userID string) *aggregates.Session {
	t.Helper()
	s, err := aggregates.NewSession(userID, nil)
	require.NoError(t, err)

	a, err := entities.NewNode(mustNodeID("a"), "A", 1)
	require.NoError(t, err)
	require.NoError(t, s.LoadTree("tree-1", "q", valueobjects.ModeNeedsFirst, []aggregates.GeneratedLevel{
		{Level: 1, Nodes: []*entities.Node{a}},
	}))
	return s
}

func TestSessionRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(nil)
	s := newSession(t, "user-1")
	require.NoError(t, s.Select(1, mustNodeID("a")))

	require.NoError(t, repo.Save(ctx, s))
	assert.Equal(t, 1, s.Version())

	loaded, err := repo.GetByID(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, loaded.Path().Strings())
	assert.Equal(t, 1, loaded.Version())
	assert.Empty(t, loaded.GetUncommittedEvents())

	// the loaded aggregate is a copy
	loaded.ClearSelection(1)
	again, err := repo.GetByID(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Path().Strings())
}

func TestSessionRepository_VersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(nil)
	s := newSession(t, "user-1")
	require.NoError(t, repo.Save(ctx, s))

	first, err := repo.GetByID(ctx, s.ID())
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, s.ID())
	require.NoError(t, err)

	require.NoError(t, first.Select(1, mustNodeID("a")))
	require.NoError(t, repo.Save(ctx, first))

	second.ClearSelection(1)
	err = repo.Save(ctx, second)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.True(t, errors.Is(err, aggregates.ErrVersionConflict))
	assert.Equal(t, 1, second.Version(), "a failed save leaves the version alone")

	// s was persisted at version 1, the store now holds 2
	assert.True(t, pkgerrors.IsConflict(repo.Save(ctx, s)))
}

func TestSessionRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(nil)

	older := newSession(t, "user-1")
	require.NoError(t, repo.Save(ctx, older))
	time.Sleep(2 * time.Millisecond)
	newer := newSession(t, "user-1")
	require.NoError(t, repo.Save(ctx, newer))
	require.NoError(t, repo.Save(ctx, newSession(t, "user-2")))

	sessions, err := repo.ListByUser(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID(), sessions[0].ID())
	assert.Equal(t, older.ID(), sessions[1].ID())

	sessions, err = repo.ListByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(nil)
	s := newSession(t, "user-1")
	require.NoError(t, repo.Save(ctx, s))

	require.NoError(t, repo.Delete(ctx, s.ID()))
	_, err := repo.GetByID(ctx, s.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(repo.Delete(ctx, s.ID())))
}

func TestTreeRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTreeRepository()

	_, err := repo.GetTree(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsValidation(repo.SaveTree(ctx, &ports.SavedTree{})))

	require.NoError(t, repo.SaveTree(ctx, &ports.SavedTree{ID: "tree-1", UserID: "user-1", Query: "q"}))
	tree, err := repo.GetTree(ctx, "tree-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", tree.UserID)
	assert.False(t, tree.CreatedAt.IsZero())
}
