package memory

import (
	"context"
	"sync"
	"time"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// TreeRepository keeps saved trees in process memory for development
// runs without the backend tables
type TreeRepository struct {
	mu    sync.RWMutex
	trees map[valueobjects.TreeID]ports.SavedTree
}

// NewTreeRepository creates an empty in-memory tree repository
func NewTreeRepository() *TreeRepository {
	return &TreeRepository{trees: make(map[valueobjects.TreeID]ports.SavedTree)}
}

// SaveTree inserts or replaces a tree
func (r *TreeRepository) SaveTree(ctx context.Context, tree *ports.SavedTree) error {
	if tree == nil || tree.ID == "" {
		return pkgerrors.NewValidationError("tree id is required")
	}

	stored := *tree
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees[tree.ID] = stored
	return nil
}

// GetTree retrieves a tree by its ID
func (r *TreeRepository) GetTree(ctx context.Context, id valueobjects.TreeID) (*ports.SavedTree, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tree, exists := r.trees[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("tree")
	}
	return &tree, nil
}
