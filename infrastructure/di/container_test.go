package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/config"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/generation"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/messaging"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/messaging/eventbridge"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/memory"
	supabaserepo "github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/supabase"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "ENVIRONMENT", "SESSION_STORE", "EVENT_BUS_NAME",
		"SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_ANON_KEY",
		"SUPABASE_JWT_SECRET", "JWT_SECRET", "ENABLE_METRICS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("AWS_REGION", "us-east-1")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestInitializeContainer_Development(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ENABLE_METRICS": "true"})

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.SessionRepository{}, c.Sessions)
	assert.IsType(t, &memory.TreeRepository{}, c.Trees)
	assert.IsType(t, &messaging.LocalPublisher{}, c.Publisher)
	assert.IsType(t, generation.Disabled{}, c.Generator)

	handler := c.Router.Setup()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitializeContainer_ExternalServices(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"SUPABASE_URL":              "https://project.supabase.co",
		"SUPABASE_SERVICE_ROLE_KEY": "service-role",
		"SUPABASE_JWT_SECRET":       "jwt-secret",
		"EVENT_BUS_NAME":            "exploration-bus",
	})

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &supabaserepo.TreeRepository{}, c.Trees)
	assert.IsType(t, &eventbridge.Publisher{}, c.Publisher)
	assert.IsType(t, &generation.EdgeClient{}, c.Generator)

	// tokens are now required
	rec := httptest.NewRecorder()
	c.Router.Setup().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProvideSessionStore_Unknown(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.SessionStore = "redis"

	_, _, err := InitializeContainer(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown session store")
}
