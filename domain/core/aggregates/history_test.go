package aggregates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
)

func path(t *testing.T, ids ...string) valueobjects.Path {
	t.Helper()
	p, err := valueobjects.PathFromStrings(ids...)
	require.NoError(t, err)
	return p
}

func TestHistory_InitialState(t *testing.T) {
	h := NewHistory(valueobjects.EmptyPath(), 0)

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 0, h.Cursor())
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	_, ok := h.Undo()
	assert.False(t, ok)
	_, ok = h.Redo()
	assert.False(t, ok)
}

func TestHistory_RoundTrip(t *testing.T) {
	a, b := path(t, "a"), path(t, "a", "b")
	h := NewHistory(valueobjects.EmptyPath(), 0)

	h.Commit(a)
	h.Commit(b)

	got, ok := h.Undo()
	require.True(t, ok)
	assert.True(t, got.Equal(a))

	got, ok = h.Redo()
	require.True(t, ok)
	assert.True(t, got.Equal(b))
}

func TestHistory_CommitTruncatesRedoTail(t *testing.T) {
	a, b, c := path(t, "a"), path(t, "b"), path(t, "c")
	h := NewHistory(valueobjects.EmptyPath(), 0)

	h.Commit(a)
	h.Commit(b)
	h.Undo()
	h.Commit(c)

	_, ok := h.Redo()
	assert.False(t, ok)
	assert.Equal(t, 3, h.Len())

	got, ok := h.Undo()
	require.True(t, ok)
	assert.True(t, got.Equal(a))
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(valueobjects.EmptyPath(), 3)
	for _, s := range []string{"a", "b", "c", "d"} {
		h.Commit(path(t, s))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Cursor())
	entries := h.Entries()
	assert.Equal(t, "b", entries[0].String())
	assert.Equal(t, "d", h.Current().String())
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(valueobjects.EmptyPath(), 0)
	h.Commit(path(t, "a"))
	h.Reset(valueobjects.EmptyPath())

	assert.Equal(t, 1, h.Len())
	assert.False(t, h.CanUndo())
	assert.True(t, h.Current().IsEmpty())
}

func TestRestoreHistory(t *testing.T) {
	entries := []valueobjects.Path{valueobjects.EmptyPath(), path(t, "a")}

	h, err := RestoreHistory(entries, 1, 0)
	require.NoError(t, err)
	assert.True(t, h.CanUndo())

	_, err = RestoreHistory(entries, 2, 0)
	assert.True(t, errors.Is(err, ErrHistoryCorrupted))

	h, err = RestoreHistory(nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())
}
