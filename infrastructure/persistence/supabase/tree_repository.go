package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// Metrics records repository calls
type Metrics interface {
	RecordDBOperation(operation, table string, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordDBOperation(string, string, time.Duration, error) {}

// treeRow mirrors a row of the technology_trees table
type treeRow struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	SearchTheme   string                  `json:"search_theme"`
	ReasoningMode string                  `json:"reasoning_mode"`
	TreeStructure []aggregates.LevelEntry `json:"tree_structure"`
	CreatedAt     string                  `json:"created_at,omitempty"`
}

// TreeRepository stores generated trees in the Supabase backend tables
// through PostgREST
type TreeRepository struct {
	client  *supabase.Client
	table   string
	metrics Metrics
	logger  *zap.Logger
}

// NewTreeRepository creates a tree repository on the given table
func NewTreeRepository(client *supabase.Client, table string, metrics Metrics, logger *zap.Logger) *TreeRepository {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TreeRepository{
		client:  client,
		table:   table,
		metrics: metrics,
		logger:  logger,
	}
}

// NewClient creates the Supabase client shared by the repository and
// the generation client
func NewClient(url, key string) (*supabase.Client, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// SaveTree inserts or replaces a tree
func (r *TreeRepository) SaveTree(ctx context.Context, tree *ports.SavedTree) (err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("upsert", r.table, time.Since(start), err) }()

	if tree == nil || tree.ID == "" {
		return pkgerrors.NewValidationError("tree id is required")
	}

	row := treeRow{
		ID:            tree.ID.String(),
		UserID:        tree.UserID,
		SearchTheme:   tree.Query,
		ReasoningMode: tree.Mode.String(),
		TreeStructure: tree.Levels,
	}
	if !tree.CreatedAt.IsZero() {
		row.CreatedAt = tree.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	if _, _, err := r.client.From(r.table).Upsert(row, "id", "minimal", "").Execute(); err != nil {
		return pkgerrors.NewDatabaseError("save tree", err)
	}

	r.logger.Debug("Tree saved",
		zap.String("treeID", row.ID),
		zap.Int("lists", len(row.TreeStructure)),
	)
	return nil
}

// GetTree retrieves a tree by its ID
func (r *TreeRepository) GetTree(ctx context.Context, id valueobjects.TreeID) (tree *ports.SavedTree, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("select", r.table, time.Since(start), err) }()

	var rows []treeRow
	if _, err := r.client.From(r.table).Select("*", "", false).Eq("id", id.String()).ExecuteTo(&rows); err != nil {
		return nil, pkgerrors.NewDatabaseError("get tree", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("tree")
	}
	return rows[0].toSavedTree()
}

func (row treeRow) toSavedTree() (*ports.SavedTree, error) {
	mode, err := valueobjects.ParseGenerationMode(row.ReasoningMode)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("decode tree", err)
	}

	tree := &ports.SavedTree{
		ID:     valueobjects.TreeID(row.ID),
		UserID: row.UserID,
		Query:  row.SearchTheme,
		Mode:   mode,
		Levels: row.TreeStructure,
	}
	if row.CreatedAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
			tree.CreatedAt = at
		}
	}
	return tree, nil
}
