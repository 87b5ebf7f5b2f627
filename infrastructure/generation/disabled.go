package generation

import (
	"context"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// Disabled is the generator used when no generation service is
// configured. Every request fails as unavailable.
type Disabled struct{}

// Generate implements ports.TreeGenerator
func (Disabled) Generate(context.Context, ports.GenerationRequest) (aggregates.GenerationResult, error) {
	return aggregates.GenerationResult{}, pkgerrors.NewUnavailableError("tree generation").
		WithCode("GENERATION_NOT_CONFIGURED")
}
