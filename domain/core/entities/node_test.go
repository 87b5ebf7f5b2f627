package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

func TestNewNode_Unnamed(t *testing.T) {
	id, err := valueobjects.NewNodeIDFromString("n-17")
	require.NoError(t, err)

	n, err := NewNode(id, "  ", 2)
	require.NoError(t, err)
	assert.Empty(t, n.Name())
	assert.Equal(t, "n-17", n.DisplayName())
	assert.NoError(t, n.Validate(nil))

	require.NoError(t, n.Rename("Anodes"))
	assert.Equal(t, "Anodes", n.DisplayName())
	assert.True(t, pkgerrors.IsValidation(n.Rename(" ")))
	assert.Equal(t, "Anodes", n.Name())
}

func TestNewNode_RequiresID(t *testing.T) {
	_, err := NewNode(valueobjects.NodeID{}, "Alpha", 1)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestReconstructNode_Unnamed(t *testing.T) {
	n, err := ReconstructNode(NodeData{ID: "x", Description: "no title", Level: 3})
	require.NoError(t, err)
	assert.Equal(t, "x", n.DisplayName())
	assert.Equal(t, valueobjects.Level(3), n.Level())
	assert.Equal(t, NodeData{ID: "x", Description: "no title", Level: 3}, n.ToData())

	_, err = ReconstructNode(NodeData{ID: " ", Name: "Alpha"})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestNewCustomNode_RequiresName(t *testing.T) {
	_, err := NewCustomNode(" ", "desc", 1)
	assert.True(t, pkgerrors.IsValidation(err))

	n, err := NewCustomNode("Mine", " desc ", 1)
	require.NoError(t, err)
	assert.True(t, n.IsCustom())
	assert.Equal(t, "desc", n.Description())
}
