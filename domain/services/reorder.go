package services

import (
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
)

// Reorder returns a display ordering of list with selected moved to the
// front. The relative order of every other node is kept. When selected is
// zero or not in list the result has list's order. list is not modified.
func Reorder(list []*entities.Node, selected valueobjects.NodeID) []*entities.Node {
	out := make([]*entities.Node, 0, len(list))
	if selected.IsZero() {
		return append(out, list...)
	}

	idx := -1
	for i, n := range list {
		if n.ID().Equals(selected) {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return append(out, list...)
	}

	out = append(out, list[idx])
	out = append(out, list[:idx]...)
	return append(out, list[idx+1:]...)
}

// LevelView is the display projection of one level along a path
type LevelView struct {
	Level    valueobjects.Level
	Parent   valueobjects.NodeID
	Selected valueobjects.NodeID // zero when nothing is selected at Level
	Nodes    []*entities.Node
}

// ViewLevel projects the children list shown at level for path: the list
// keyed by the path's selection at level-1, reordered around the path's
// selection at level. ok is false when level-1 is unselected.
func ViewLevel(store *aggregates.LevelStore, path valueobjects.Path, level valueobjects.Level) (LevelView, bool) {
	parent, ok := path.ParentOf(level)
	if !ok {
		return LevelView{}, false
	}
	selected, _ := path.Get(level)
	return LevelView{
		Level:    level,
		Parent:   parent,
		Selected: selected,
		Nodes:    Reorder(store.ChildrenOf(level, parent), selected),
	}, true
}

// ProjectPath returns the view of every level reachable along path: level
// 1, each selected level, and the level below the deepest selection.
// Levels past the store's maximum depth are not projected.
func ProjectPath(store *aggregates.LevelStore, path valueobjects.Path) []LevelView {
	views := make([]LevelView, 0, path.Depth()+1)
	for level := valueobjects.RootLevel; int(level) <= path.Depth()+1 && int(level) <= store.MaxDepth(); level++ {
		view, ok := ViewLevel(store, path, level)
		if !ok {
			break
		}
		views = append(views, view)
	}
	return views
}
