package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	cmdhandlers "github.com/LLINLU/memory-ai-v3-sub002/application/commands/handlers"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	queryhandlers "github.com/LLINLU/memory-ai-v3-sub002/application/queries/handlers"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/messaging"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/memory"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/observability"
)

func mustNodeID(s string) valueobjects.NodeID {
	nid, err := valueobjects.NewNodeIDFromString(s)
	if err != nil {
		panic(err)
	}
	return nid
}

const secret = "test-secret-with-enough-length"

type generatorFunc func(ctx context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error)

func (f generatorFunc) Generate(ctx context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error) {
	return f(ctx, req)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func stubGenerator(t *testing.T) ports.TreeGenerator {
	return generatorFunc(func(_ context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error) {
		a, err := entities.NewNode(mustNodeID("a"), "Home storage", 1)
		require.NoError(t, err)
		b, err := entities.NewNode(mustNodeID("b"), "Grid storage", 1)
		require.NoError(t, err)
		return aggregates.GenerationResult{
			Levels: []aggregates.GeneratedLevel{{Level: 1, Nodes: []*entities.Node{a, b}}},
		}, nil
	})
}

type testServer struct {
	handler http.Handler
	trees   *memory.TreeRepository
}

func newServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.DefaultDomainConfig()
	sessions := memory.NewSessionRepository(cfg)
	trees := memory.NewTreeRepository()
	publisher := messaging.NewLocalPublisher(logger)

	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	require.NoError(t, cmdhandlers.NewSessionHandler(sessions, trees, publisher, nil, cfg, logger).Register(commandBus))
	require.NoError(t, cmdhandlers.NewNodeHandler(sessions, publisher, nil, cfg, logger).Register(commandBus))
	require.NoError(t, cmdhandlers.NewGenerationHandler(sessions, stubGenerator(t), trees, publisher, nil, cfg, logger).Register(commandBus))

	queryBus := querybus.NewQueryBus()
	require.NoError(t, queryhandlers.NewSessionQueryHandler(sessions, logger).Register(queryBus))

	if opts.Health == nil {
		opts.Health = map[string]ports.HealthChecker{"sessions": sessions}
	}
	router := NewRouter(commandBus, queryBus, pkgerrors.NewErrorHandler(logger, false), opts, logger)
	return &testServer{handler: router.Setup(), trees: trees}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func startSession(t *testing.T, s *testServer, user string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sessions", user, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		SessionID string `json:"sessionId"`
	}
	decodeData(t, rec, &out)
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t, Options{})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", "").Code)

	down := newServer(t, Options{Health: map[string]ports.HealthChecker{
		"sessions": pingFunc(func(context.Context) error { return errors.New("table missing") }),
	}})
	rec := down.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "table missing")
}

func TestExplorationFlow(t *testing.T) {
	s := newServer(t, Options{})
	id := startSession(t, s, "alice")
	base := "/api/v1/sessions/" + id

	rec := s.do(t, http.MethodPut, base+"/levels/1", "alice",
		`{"nodes":[{"id":"a","name":"Home storage"},{"id":"b","name":"Grid storage","description":"Utility scale"}]}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, base+"/select", "alice", `{"level":1,"nodeId":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var state struct {
		Path    []string `json:"path"`
		CanUndo bool     `json:"canUndo"`
	}
	decodeData(t, rec, &state)
	assert.Equal(t, []string{"b"}, state.Path)
	assert.True(t, state.CanUndo)

	rec = s.do(t, http.MethodGet, base+"/view?level=1", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view struct {
		Levels []struct {
			Selected string `json:"selected"`
			Nodes    []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"levels"`
	}
	decodeData(t, rec, &view)
	require.Len(t, view.Levels, 1)
	assert.Equal(t, "b", view.Levels[0].Selected)
	assert.Len(t, view.Levels[0].Nodes, 2)

	rec = s.do(t, http.MethodGet, base+"/info", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	decodeData(t, rec, &info)
	assert.Equal(t, "Grid storage", info.Title)
	assert.Equal(t, "Utility scale", info.Description)

	rec = s.do(t, http.MethodPost, base+"/undo", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var nav struct {
		Path  []string `json:"path"`
		Moved bool     `json:"moved"`
	}
	decodeData(t, rec, &nav)
	assert.True(t, nav.Moved)
	assert.Empty(t, nav.Path)

	rec = s.do(t, http.MethodPost, base+"/redo", "alice", "")
	decodeData(t, rec, &nav)
	assert.Equal(t, []string{"b"}, nav.Path)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	decodeData(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, base, "alice", "").Code)
}

func TestNodeEditing(t *testing.T) {
	s := newServer(t, Options{})
	id := startSession(t, s, "alice")
	base := "/api/v1/sessions/" + id

	rec := s.do(t, http.MethodPost, base+"/nodes", "alice", `{"level":1,"name":"Wearables"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var node struct {
		ID       string `json:"id"`
		IsCustom bool   `json:"isCustom"`
	}
	decodeData(t, rec, &node)
	assert.True(t, node.IsCustom)

	rec = s.do(t, http.MethodPatch, base+"/nodes/"+node.ID, "alice", `{"level":1,"name":"Smart wearables"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, base+"/nodes/"+node.ID+"?level=1&cascade=true", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var removed struct {
		Removed bool `json:"removed"`
	}
	decodeData(t, rec, &removed)
	assert.True(t, removed.Removed)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/prune", "alice", "").Code)
}

func TestGenerate(t *testing.T) {
	s := newServer(t, Options{})
	id := startSession(t, s, "alice")
	base := "/api/v1/sessions/" + id

	rec := s.do(t, http.MethodPost, base+"/generate", "alice", `{"query":"energy storage","mode":"FAST"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		TreeID string `json:"treeId"`
		Outcome struct {
			Discarded bool `json:"discarded"`
		} `json:"outcome"`
	}
	decodeData(t, rec, &resp)
	assert.NotEmpty(t, resp.TreeID)
	assert.False(t, resp.Outcome.Discarded)

	rec = s.do(t, http.MethodGet, base+"/view", "alice", "")
	var view struct {
		Levels []struct {
			Nodes []json.RawMessage `json:"nodes"`
		} `json:"levels"`
	}
	decodeData(t, rec, &view)
	require.NotEmpty(t, view.Levels)
	assert.Len(t, view.Levels[0].Nodes, 2)
}

func TestErrors(t *testing.T) {
	s := newServer(t, Options{})
	id := startSession(t, s, "alice")
	base := "/api/v1/sessions/" + id

	tests := []struct {
		name, method, path, user, body string
		want int
	}{
		{"other user", http.MethodGet, base, "mallory", "", http.StatusNotFound},
		{"bad session id", http.MethodGet, "/api/v1/sessions/not-a-uuid", "alice", "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/select", "alice", `{"level":1,"node":"a"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, base + "/select", "alice", `{`, http.StatusBadRequest},
		{"bad level param", http.MethodDelete, base + "/select/x", "alice", "", http.StatusBadRequest},
		{"missing parent", http.MethodPost, base + "/nodes", "alice", `{"level":2,"name":"x"}`, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nope", "alice", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestAuthentication(t *testing.T) {
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Audience:      []string{"authenticated"},
	})
	require.NoError(t, err)
	s := newServer(t, Options{Validator: validator})

	rec := s.do(t, http.MethodGet, "/api/v1/sessions", "alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.SignHS256(secret, "user-42", "u@example.com", time.Hour, "authenticated")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, Options{Limiter: auth.NewKeyedLimiter(1, 1)})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/sessions", "alice", "").Code)
	rec := s.do(t, http.MethodGet, "/api/v1/sessions", "alice", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, Options{Metrics: observability.NewCollector("techtree_test")})

	s.do(t, http.MethodGet, "/health", "", "")
	rec := s.do(t, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "techtree_test_")
}
