package aggregates

import (
	"fmt"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// History is the undo/redo sequence of path snapshots. The cursor always
// points at the entry matching the current selection.
type History struct {
	entries []valueobjects.Path
	cursor  int
	limit   int // 0 means unbounded
}

// NewHistory starts a history holding only initial
func NewHistory(initial valueobjects.Path, limit int) *History {
	return &History{
		entries: []valueobjects.Path{initial},
		limit:   limit,
	}
}

// RestoreHistory rebuilds a history from persisted entries
func RestoreHistory(entries []valueobjects.Path, cursor, limit int) (*History, error) {
	if len(entries) == 0 {
		return NewHistory(valueobjects.EmptyPath(), limit), nil
	}
	if cursor < 0 || cursor >= len(entries) {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("history cursor %d outside [0, %d)", cursor, len(entries))).
			WithCode("HISTORY_CORRUPTED").
			WithCause(ErrHistoryCorrupted)
	}
	copied := make([]valueobjects.Path, len(entries))
	copy(copied, entries)
	return &History{entries: copied, cursor: cursor, limit: limit}, nil
}

// Commit discards every entry after the cursor, appends path and moves
// the cursor to it. When a limit is set the oldest entries are dropped.
func (h *History) Commit(path valueobjects.Path) {
	h.entries = append(h.entries[:h.cursor+1:h.cursor+1], path)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.cursor = len(h.entries) - 1
}

// Undo steps back one entry. ok is false at the start of the history.
func (h *History) Undo() (path valueobjects.Path, ok bool) {
	if !h.CanUndo() {
		return valueobjects.Path{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo steps forward one entry. ok is false at the end of the history.
func (h *History) Redo() (path valueobjects.Path, ok bool) {
	if !h.CanRedo() {
		return valueobjects.Path{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Current returns the entry under the cursor
func (h *History) Current() valueobjects.Path {
	return h.entries[h.cursor]
}

func (h *History) Len() int    { return len(h.entries) }
func (h *History) Cursor() int { return h.cursor }

// Entries returns a copy of the sequence
func (h *History) Entries() []valueobjects.Path {
	out := make([]valueobjects.Path, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset starts over with initial as the only entry
func (h *History) Reset(initial valueobjects.Path) {
	h.entries = []valueobjects.Path{initial}
	h.cursor = 0
}
