package valueobjects

import (
	"fmt"
	"strings"
)

// GenerationMode selects how the generation service breaks a query down
type GenerationMode string

const (
	// ModeNeedsFirst starts from scenarios and purposes (TED)
	ModeNeedsFirst GenerationMode = "needs-first"
	// ModeTechnologyFirst starts from the technology itself (FAST)
	ModeTechnologyFirst GenerationMode = "technology-first"
)

// ParseGenerationMode accepts the canonical names and the TED/FAST aliases.
// An empty string defaults to needs-first.
func ParseGenerationMode(s string) (GenerationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "needs-first", "ted":
		return ModeNeedsFirst, nil
	case "technology-first", "fast":
		return ModeTechnologyFirst, nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}

// String returns the canonical name
func (m GenerationMode) String() string {
	return string(m)
}

// Alias returns the short name used by the generation service
func (m GenerationMode) Alias() string {
	if m == ModeTechnologyFirst {
		return "FAST"
	}
	return "TED"
}
