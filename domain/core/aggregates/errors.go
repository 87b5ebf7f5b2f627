package aggregates

import (
	"errors"
	"fmt"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// Sentinels usable with errors.Is through the AppError cause chain
var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrInvalidLevel     = errors.New("invalid level")
	ErrDuplicateNode    = errors.New("duplicate node id among siblings")
	ErrLevelFull        = errors.New("level is full")
	ErrStaleGeneration  = errors.New("stale generation result")
	ErrMissingParent    = errors.New("parent id required below level 1")
	ErrVersionConflict  = errors.New("session was modified concurrently")
	ErrNotCustomNode    = errors.New("only custom nodes can be added by users")
	ErrHistoryCorrupted = errors.New("history cursor out of range")
)

func notFound(level valueobjects.Level, parent, id valueobjects.NodeID) error {
	return pkgerrors.NewNotFoundError(fmt.Sprintf("node %q at level %d", id.String(), level)).
		WithCode("NODE_NOT_FOUND").
		WithDetail("level", level.Int()).
		WithDetail("parent_id", parent.String()).
		WithCause(ErrNodeNotFound)
}

func invalidLevel(level valueobjects.Level, maxDepth int) error {
	return pkgerrors.NewValidationError(fmt.Sprintf("level %d outside [1, %d]", level, maxDepth)).
		WithCode("INVALID_LEVEL").
		WithCause(ErrInvalidLevel)
}

func invalidPath(err error) error {
	return pkgerrors.NewValidationError(err.Error()).
		WithCode("INVALID_PATH").
		WithCause(err)
}

// VersionConflict is returned by repositories when the stored session is
// newer than the version the caller loaded
func VersionConflict(id valueobjects.SessionID, version int) error {
	return pkgerrors.NewConflictError("session was modified concurrently").
		WithCode("VERSION_CONFLICT").
		WithDetail("session_id", id.String()).
		WithDetail("version", version).
		WithCause(ErrVersionConflict)
}
