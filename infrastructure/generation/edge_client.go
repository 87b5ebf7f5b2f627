package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// maximum accepted response body
const maxResponseBytes = 4 << 20

// Config holds the edge function client settings
type Config struct {
	BaseURL  string // Supabase project URL
	APIKey   string
	Function string // edge function name, e.g. generate-tree

	// Consecutive failures before the breaker opens, and how long it
	// stays open.
	MaxFailures uint32
	Cooldown    time.Duration
}

type generateRequest struct {
	SearchTheme   string   `json:"searchTheme"`
	ReasoningMode string   `json:"reasoningMode"`
	Level         int      `json:"level,omitempty"`
	ParentID      string   `json:"parentId,omitempty"`
	Context       []string `json:"context,omitempty"`
}

type generatedList struct {
	Level    int                 `json:"level"`
	ParentID string              `json:"parentId,omitempty"`
	Nodes    []entities.NodeData `json:"nodes"`
}

type generateResponse struct {
	TreeID string          `json:"treeId"`
	Levels []generatedList `json:"levels"`
	Error  string          `json:"error,omitempty"`
}

// EdgeClient calls the tree generation edge function. Calls go through a
// circuit breaker so a failing function is not hammered while it
// recovers.
type EdgeClient struct {
	http    *http.Client
	url     string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewEdgeClient creates the generation client
func NewEdgeClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *EdgeClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}

	c := &EdgeClient{
		http:   httpClient,
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/functions/v1/" + cfg.Function,
		apiKey: cfg.APIKey,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Function,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Generation circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// rejected requests say nothing about the function's health
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsValidation(err)
		},
	})
	return c
}

// Generate asks the edge function for a tree or the children of one node
func (c *EdgeClient) Generate(ctx context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return aggregates.GenerationResult{}, pkgerrors.NewUnavailableError("tree generation").WithCause(err)
		}
		return aggregates.GenerationResult{}, err
	}

	resp := out.(*generateResponse)
	result, err := toResult(req, resp)
	if err != nil {
		return aggregates.GenerationResult{}, err
	}

	c.logger.Debug("Tree generated",
		zap.String("scope", req.Scope.Key()),
		zap.Int("lists", len(result.Levels)),
	)
	return result, nil
}

func (c *EdgeClient) call(ctx context.Context, req ports.GenerationRequest) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		SearchTheme:   req.Query,
		ReasoningMode: req.Mode.Alias(),
		Level:         req.Scope.Level.Int(),
		ParentID:      req.Scope.Parent.String(),
		Context:       req.Context,
	})
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to encode generation request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.NewInternalError("failed to build generation request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pkgerrors.NewExternalError("tree generation", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, pkgerrors.NewExternalError("tree generation", err)
	}

	var resp generateResponse
	decodeErr := json.Unmarshal(raw, &resp)

	switch {
	case httpResp.StatusCode >= 500:
		return nil, pkgerrors.NewExternalError("tree generation",
			fmt.Errorf("status %d: %s", httpResp.StatusCode, resp.Error))
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, pkgerrors.NewRateLimitError("tree generation is rate limited")
	case httpResp.StatusCode >= 400:
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("generation rejected with status %d", httpResp.StatusCode)
		}
		return nil, pkgerrors.NewValidationError(msg)
	}

	if decodeErr != nil {
		return nil, pkgerrors.NewExternalError("tree generation", fmt.Errorf("invalid response: %w", decodeErr))
	}
	return &resp, nil
}

func toResult(req ports.GenerationRequest, resp *generateResponse) (aggregates.GenerationResult, error) {
	result := aggregates.GenerationResult{
		TreeID: valueobjects.TreeID(resp.TreeID),
		Query:  req.Query,
		Mode:   req.Mode,
		Levels: make([]aggregates.GeneratedLevel, 0, len(resp.Levels)),
	}
	for _, list := range resp.Levels {
		level := aggregates.GeneratedLevel{
			Level: valueobjects.Level(list.Level),
			Nodes: make([]*entities.Node, 0, len(list.Nodes)),
		}
		if list.ParentID != "" {
			parent, err := valueobjects.NewNodeIDFromString(list.ParentID)
			if err != nil {
				return result, pkgerrors.NewExternalError("tree generation", err)
			}
			level.Parent = parent
		}
		for _, data := range list.Nodes {
			if data.Level == 0 {
				data.Level = list.Level
			}
			data.IsCustom = false
			node, err := entities.ReconstructNode(data)
			if err != nil {
				return result, pkgerrors.NewExternalError("tree generation", err)
			}
			level.Nodes = append(level.Nodes, node)
		}
		result.Levels = append(result.Levels, level)
	}
	return result, nil
}
