package agentmux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/config"
	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/pkg/backend"
	"github.com/agentmux/agentmux/pkg/types"
)

type echoEngine struct {
	model string
}

func (e *echoEngine) Invoke(ctx context.Context, req *types.Request) (*types.Response, error) {
	return &types.Response{
		Model:   e.model,
		Content: "echo: " + req.UserPrompt,
		Usage:   &types.Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2},
		Created: time.Now().Unix(),
	}, nil
}

func (e *echoEngine) InvokeStream(ctx context.Context, req *types.Request) (backend.StreamHandler, error) {
	return nil, errors.New("streaming not supported")
}

func testConfig(models ...Model) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Models = models
	cfg.Cache.Shared.Enabled = false
	return cfg
}

func echoFactory(ctx context.Context, model Model) (backend.Engine, error) {
	return &echoEngine{model: model.ID}, nil
}

func newTestMux(t *testing.T, cfg *config.Config) *Mux {
	t.Helper()
	m, err := New(cfg, echoFactory, WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func TestMuxRouteEndToEnd(t *testing.T) {
	m := newTestMux(t, testConfig(Model{ID: "m1"}))

	resp, err := m.Route(context.Background(), &types.Request{Model: "m1", UserPrompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", resp.Content)
	assert.False(t, resp.Cached)
}

func TestMuxRouteServesSecondCallFromCache(t *testing.T) {
	m := newTestMux(t, testConfig(Model{ID: "m1"}))
	ctx := context.Background()
	req := &types.Request{Model: "m1", UserPrompt: "hello"}

	_, err := m.Route(ctx, req)
	require.NoError(t, err)

	resp, err := m.Route(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Cached)

	stats := m.CacheStats()
	assert.Equal(t, int64(1), stats.LocalHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMuxMetricsAndHealth(t *testing.T) {
	m := newTestMux(t, testConfig(Model{ID: "m1"}))

	_, err := m.Route(context.Background(), &types.Request{Model: "m1", UserPrompt: "hello"})
	require.NoError(t, err)

	summary := m.GetMetrics("m1", time.Minute)
	assert.Equal(t, int64(1), summary.TotalRequests)
	assert.Equal(t, 1.0, summary.SuccessRate)
	assert.True(t, m.GetHealth("m1").Healthy())
}

func TestMuxRequiresFactory(t *testing.T) {
	_, err := New(testConfig(), nil)
	assert.Error(t, err)
}

func TestMuxRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig(Model{ID: "m1"})
	cfg.Routing.Strategy = "clairvoyant"
	_, err := New(cfg, echoFactory)
	assert.Error(t, err)
}

func TestMuxReplaceModels(t *testing.T) {
	m := newTestMux(t, testConfig(Model{ID: "m1"}))
	ctx := context.Background()

	require.NoError(t, m.ReplaceModels([]Model{{ID: "m2"}}))

	resp, err := m.Route(ctx, &types.Request{Model: "m2", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m2", resp.Model)
}

func TestMuxNewFromFileWatchesModels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  shared:
    enabled: false
models:
  - id: m1
    capabilities: [text]
`), 0o600))

	m, err := NewFromFile(path, echoFactory, WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(context.Background()) })

	visionReq := &types.Request{
		Model:      "m2",
		UserPrompt: "hi",
		Hints:      &types.RoutingHints{RequiredCapabilities: []string{"vision"}},
	}
	_, err = m.Route(context.Background(), visionReq)
	require.Error(t, err, "no configured model has the vision capability yet")

	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  shared:
    enabled: false
models:
  - id: m1
    capabilities: [text]
  - id: m2
    capabilities: [text, vision]
`), 0o600))

	// The watcher debounces; poll until the new model is routable.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := m.Route(context.Background(), visionReq)
		if err == nil {
			assert.Equal(t, "m2", resp.Model)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("model catalog never picked up the reloaded config")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestMuxCacheDisabled(t *testing.T) {
	cfg := testConfig(Model{ID: "m1"})
	cfg.Cache.Enabled = false
	m := newTestMux(t, cfg)
	ctx := context.Background()
	req := &types.Request{Model: "m1", UserPrompt: "hello"}

	_, err := m.Route(ctx, req)
	require.NoError(t, err)
	resp, err := m.Route(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
}
