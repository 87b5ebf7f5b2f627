package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession("user-1", nil)
	require.NoError(t, err)

	require.NoError(t, s.LoadTree("tree-1", "battery recycling", valueobjects.ModeNeedsFirst, []GeneratedLevel{
		{Level: 1, Nodes: nodes(t, "a", "b")},
		{Level: 2, Parent: id("a"), Nodes: nodes(t, "a1", "a2")},
		{Level: 2, Parent: id("b"), Nodes: nodes(t, "b1")},
		{Level: 3, Parent: id("a2"), Nodes: nodes(t, "a2x")},
	}))
	s.MarkEventsAsCommitted()
	return s
}

func eventTypes(s *Session) []string {
	var out []string
	for _, e := range s.GetUncommittedEvents() {
		out = append(out, e.GetEventType())
	}
	return out
}

func TestNewSession_RequiresUser(t *testing.T) {
	_, err := NewSession(" ", nil)
	assert.Error(t, err)
}

func TestSession_SelectScenario(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a2")))
	assert.Equal(t, []string{"a", "a2"}, s.Path().Strings())

	require.NoError(t, s.Select(1, id("b")))
	assert.Equal(t, []string{"b"}, s.Path().Strings())
	_, ok := s.Path().Get(2)
	assert.False(t, ok)
	_, ok = s.Path().Get(3)
	assert.False(t, ok)

	assert.Equal(t, []string{
		events.TypeSelectionChanged,
		events.TypeSelectionChanged,
		events.TypeSelectionChanged,
	}, eventTypes(s))
}

func TestSession_SelectDetailLevelRaisesDetailEvent(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a2")))
	require.NoError(t, s.Select(3, id("a2x")))

	types := eventTypes(s)
	assert.Equal(t, events.TypeDetailRequested, types[len(types)-1])

	detail, ok := s.GetUncommittedEvents()[len(types)-1].(events.DetailRequested)
	require.True(t, ok)
	assert.Equal(t, "a2x", detail.NodeID)
	assert.Equal(t, "user-1", detail.UserID)
}

func TestSession_SelectUnknownNode(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))

	err := s.Select(2, id("b1"))
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, s.Path().Strings())
}

func TestSession_UndoRedo(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a1")))
	s.MarkEventsAsCommitted()

	require.True(t, s.Undo())
	assert.Equal(t, []string{"a"}, s.Path().Strings())
	assert.True(t, s.CanRedo())

	require.True(t, s.Redo())
	assert.Equal(t, []string{"a", "a1"}, s.Path().Strings())
	assert.False(t, s.Redo())

	assert.Equal(t, []string{
		events.TypeSelectionChanged, events.TypeHistoryNavigated,
		events.TypeSelectionChanged, events.TypeHistoryNavigated,
	}, eventTypes(s))

	changed := s.GetUncommittedEvents()[0].(events.SelectionChanged)
	assert.True(t, changed.Restored)
}

func TestSession_UndoAfterBranchingCommit(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a1")))
	require.True(t, s.Undo())
	require.NoError(t, s.Select(2, id("a2")))

	assert.False(t, s.Redo())
	require.True(t, s.Undo())
	assert.Equal(t, []string{"a"}, s.Path().Strings())
}

func TestSession_ClearSelection(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a1")))

	s.ClearSelection(2)
	assert.Equal(t, []string{"a"}, s.Path().Strings())
	assert.True(t, s.CanUndo())
}

func TestSession_LoadTreeResetsPathAndHistory(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))

	require.NoError(t, s.LoadTree("tree-2", "q", valueobjects.ModeTechnologyFirst, []GeneratedLevel{
		{Level: 1, Nodes: nodes(t, "z")},
	}))

	assert.True(t, s.Path().IsEmpty())
	assert.False(t, s.CanUndo())
	assert.Equal(t, valueobjects.TreeID("tree-2"), s.TreeID())
	assert.Equal(t, valueobjects.ModeTechnologyFirst, s.Mode())
	assert.Equal(t, 1, s.Store().NodeCount())
}

func TestSession_AddUpdateRemove(t *testing.T) {
	s := newTestSession(t)

	node, err := s.AddCustomNode(2, id("a"), "My idea", "details")
	require.NoError(t, err)
	assert.True(t, node.IsCustom())
	assert.Equal(t, valueobjects.Level(2), node.Level())
	assert.Len(t, s.Store().ChildrenOf(2, id("a")), 3)

	name := "Better idea"
	updated, err := s.UpdateNode(2, id("a"), node.ID(), NodeUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name())

	removed, dropped := s.RemoveNode(2, id("a"), node.ID(), false)
	assert.True(t, removed)
	assert.Zero(t, dropped)

	removed, _ = s.RemoveNode(2, id("a"), node.ID(), false)
	assert.False(t, removed)

	assert.Equal(t, []string{
		events.TypeCustomNodeAdded,
		events.TypeNodeUpdated,
		events.TypeNodeRemoved,
	}, eventTypes(s))
}

func TestSession_RemoveSelectedNodeKeepsSelection(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a2")))

	removed, dropped := s.RemoveNode(2, id("a"), id("a2"), true)
	assert.True(t, removed)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"a", "a2"}, s.Path().Strings())
	assert.Empty(t, s.Store().ChildrenOf(3, id("a2")))
}

func TestSession_PruneOrphans(t *testing.T) {
	s := newTestSession(t)
	s.RemoveNode(1, valueobjects.NodeID{}, id("a"), false)

	assert.Equal(t, 2, s.PruneOrphans())
	assert.Equal(t, 0, s.PruneOrphans())
}

func TestSession_StaleGenerationIsDiscarded(t *testing.T) {
	s := newTestSession(t)

	first, err := s.BeginGeneration(TreeScope)
	require.NoError(t, err)
	second, err := s.BeginGeneration(TreeScope)
	require.NoError(t, err)
	assert.Greater(t, second.Sequence, first.Sequence)

	outcome, err := s.ApplyGeneration(first, GenerationResult{
		TreeID: "old",
		Levels: []GeneratedLevel{{Level: 1, Nodes: nodes(t, "old")}},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Discarded)
	assert.Equal(t, valueobjects.TreeID("tree-1"), s.TreeID())

	outcome, err = s.ApplyGeneration(second, GenerationResult{
		TreeID: "new",
		Levels: []GeneratedLevel{{Level: 1, Nodes: nodes(t, "new")}},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Discarded)
	assert.Equal(t, 1, outcome.Merged)
	assert.Equal(t, valueobjects.TreeID("new"), s.TreeID())
	assert.Empty(t, s.Pending())

	// applying the same ticket twice is stale too
	outcome, err = s.ApplyGeneration(second, GenerationResult{})
	require.NoError(t, err)
	assert.True(t, outcome.Discarded)

	assert.Contains(t, eventTypes(s), events.TypeGenerationDiscarded)
	assert.Contains(t, eventTypes(s), events.TypeGenerationMerged)
}

func TestSession_GenerationKeepsLocalEdits(t *testing.T) {
	s := newTestSession(t)

	ticket, err := s.BeginGeneration(GenerationScope{Level: 2, Parent: id("a")})
	require.NoError(t, err)

	// user edits level 2 under "a" while generation is in flight
	_, err = s.AddCustomNode(2, id("a"), "Mine", "")
	require.NoError(t, err)

	outcome, err := s.ApplyGeneration(ticket, GenerationResult{
		Levels: []GeneratedLevel{
			{Level: 2, Parent: id("a"), Nodes: nodes(t, "g1", "g2")},
			{Level: 3, Parent: id("a1"), Nodes: nodes(t, "g3")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Merged)
	assert.Equal(t, 1, outcome.Skipped)

	assert.Equal(t, []string{"a1", "a2"}, idsOf(s.Store().ChildrenOf(2, id("a")))[:2])
	assert.Len(t, s.Store().ChildrenOf(2, id("a")), 3)
	assert.Equal(t, []string{"g3"}, idsOf(s.Store().ChildrenOf(3, id("a1"))))
}

func TestSession_SubtreeGenerationStaysInScope(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a1")))

	ticket, err := s.BeginGeneration(GenerationScope{Level: 3, Parent: id("a1")})
	require.NoError(t, err)

	outcome, err := s.ApplyGeneration(ticket, GenerationResult{
		Levels: []GeneratedLevel{
			{Level: 1, Nodes: nodes(t, "z")},
			{Level: 2, Parent: id("b"), Nodes: nodes(t, "zz")},
			{Level: 3, Parent: id("a1"), Nodes: nodes(t, "x")},
			{Level: 4, Parent: id("x"), Nodes: nodes(t, "x1")},
			{Level: 4, Parent: id("a2x"), Nodes: nodes(t, "stray")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Merged)
	assert.Equal(t, 0, outcome.Skipped)
	assert.Equal(t, 3, outcome.Dropped)

	assert.Equal(t, []string{"a", "b"}, idsOf(s.Store().ChildrenOf(1, valueobjects.NodeID{})))
	assert.Equal(t, []string{"b1"}, idsOf(s.Store().ChildrenOf(2, id("b"))))
	assert.Equal(t, []string{"x"}, idsOf(s.Store().ChildrenOf(3, id("a1"))))
	assert.Equal(t, []string{"x1"}, idsOf(s.Store().ChildrenOf(4, id("x"))))
	assert.Empty(t, s.Store().ChildrenOf(4, id("a2x")))
	assert.Equal(t, []string{"a", "a1"}, s.Path().Strings())
}

func TestSession_SubtreeGenerationRespectsNewerTickets(t *testing.T) {
	s := newTestSession(t)

	outer, err := s.BeginGeneration(GenerationScope{Level: 2, Parent: id("a")})
	require.NoError(t, err)
	inner, err := s.BeginGeneration(GenerationScope{Level: 3, Parent: id("a2")})
	require.NoError(t, err)

	outcome, err := s.ApplyGeneration(outer, GenerationResult{
		Levels: []GeneratedLevel{
			{Level: 2, Parent: id("a"), Nodes: nodes(t, "a1", "a2")},
			{Level: 3, Parent: id("a2"), Nodes: nodes(t, "old")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Merged)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Equal(t, []string{"a2x"}, idsOf(s.Store().ChildrenOf(3, id("a2"))))

	outcome, err = s.ApplyGeneration(inner, GenerationResult{
		Levels: []GeneratedLevel{{Level: 3, Parent: id("a2"), Nodes: nodes(t, "new")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Merged)
	assert.Equal(t, []string{"new"}, idsOf(s.Store().ChildrenOf(3, id("a2"))))
}

func TestSession_EditRevisionSurvivesSnapshot(t *testing.T) {
	s := newTestSession(t)
	removed, _ := s.RemoveNode(1, valueobjects.NodeID{}, id("a"), false)
	require.True(t, removed)
	_, err := s.AddCustomNode(3, id("a2"), "Mine", "")
	require.NoError(t, err)
	require.Equal(t, 2, s.PruneOrphans())
	s.MarkPersisted()

	restored, err := RestoreSession(s.Snapshot(), nil)
	require.NoError(t, err)

	// the latest edited list was pruned; a ticket issued after the restore
	// must still sit after both edits
	ticket, err := restored.BeginGeneration(TreeScope)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ticket.Revision)
}

func TestSession_TreeGenerationKeepsLocalEdits(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))

	ticket, err := s.BeginGeneration(TreeScope)
	require.NoError(t, err)
	expand, err := s.BeginGeneration(GenerationScope{Level: 3, Parent: id("a1")})
	require.NoError(t, err)

	_, err = s.AddCustomNode(2, id("b"), "Mine", "")
	require.NoError(t, err)

	outcome, err := s.ApplyGeneration(ticket, GenerationResult{
		TreeID: "tree-2",
		Query:  "q",
		Levels: []GeneratedLevel{
			{Level: 1, Nodes: nodes(t, "a", "b")},
			{Level: 2, Parent: id("b"), Nodes: nodes(t, "gen")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Merged)
	assert.Equal(t, 1, outcome.Skipped)

	assert.Equal(t, []string{"b1"}, idsOf(s.Store().ChildrenOf(2, id("b")))[:1])
	assert.Empty(t, s.Store().ChildrenOf(2, id("a")))
	assert.True(t, s.Path().IsEmpty())

	// the expansion requested against the old tree is stale now
	outcome, err = s.ApplyGeneration(expand, GenerationResult{})
	require.NoError(t, err)
	assert.True(t, outcome.Discarded)
}

func TestSession_BeginGenerationValidatesScope(t *testing.T) {
	s := newTestSession(t)

	_, err := s.BeginGeneration(GenerationScope{Level: 2})
	assert.Error(t, err)
	_, err = s.BeginGeneration(GenerationScope{Level: 42, Parent: id("x")})
	assert.Error(t, err)
}

func TestGenerationScope_KeyRoundTrip(t *testing.T) {
	for _, scope := range []GenerationScope{
		TreeScope,
		{Level: 1},
		{Level: 3, Parent: id("abc")},
	} {
		parsed, err := ParseGenerationScope(scope.Key())
		require.NoError(t, err)
		assert.Equal(t, scope, parsed)
	}

	for _, bad := range []string{"", "level", "level:x:y", "level:0:y", "level:2:"} {
		_, err := ParseGenerationScope(bad)
		assert.Error(t, err, bad)
	}
}

func TestSession_SnapshotRestore(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a2")))
	require.True(t, s.Undo())
	_, err := s.BeginGeneration(GenerationScope{Level: 3, Parent: id("a1")})
	require.NoError(t, err)
	s.MarkPersisted()

	restored, err := RestoreSession(s.Snapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, s.ID(), restored.ID())
	assert.Equal(t, s.Version(), restored.Version())
	assert.True(t, restored.Path().Equal(s.Path()))
	assert.Equal(t, s.HistoryLen(), restored.HistoryLen())
	assert.Equal(t, s.HistoryCursor(), restored.HistoryCursor())
	assert.True(t, restored.CanRedo())
	assert.Equal(t, s.Pending(), restored.Pending())
	assert.Equal(t, s.Store().Keys(), restored.Store().Keys())
	assert.Empty(t, restored.GetUncommittedEvents())

	// restored sessions keep validating and emitting
	require.NoError(t, restored.Select(2, id("a1")))
	assert.Equal(t, []string{events.TypeSelectionChanged}, eventTypes(restored))
}

func TestSession_EventVersionFollowsPersistence(t *testing.T) {
	s := newTestSession(t)
	s.MarkPersisted()
	s.MarkPersisted()

	require.NoError(t, s.Select(1, id("a")))
	assert.Equal(t, 3, s.GetUncommittedEvents()[0].GetVersion())
}

var _ NodeFinder = (*LevelStore)(nil)

func TestSession_HasChangesAfterPartialSelect(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Select(1, id("a")))
	require.NoError(t, s.Select(2, id("a2")))
	s.MarkEventsAsCommitted()
	s.MarkPersisted()
	assert.False(t, s.HasChanges())

	err := s.Select(1, id("missing"))
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Empty(t, s.GetUncommittedEvents())
	assert.True(t, s.HasChanges())
	assert.Equal(t, []string{"a"}, s.Path().Strings())
}
