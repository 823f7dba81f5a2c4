package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisTier(t *testing.T) (*RedisTier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultRedisTierConfig()
	cfg.Addr = mr.Addr()

	tier, err := NewRedisTier(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tier.Close() })
	return tier, mr
}

func TestRedisTierSetGet(t *testing.T) {
	tier, _ := newTestRedisTier(t)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("v1"), time.Minute))

	val, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestRedisTierMissReturnsNil(t *testing.T) {
	tier, _ := newTestRedisTier(t)

	val, err := tier.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisTierNamespacing(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("v1"), time.Minute))
	assert.True(t, mr.Exists("agentmux:k1"))
}

func TestRedisTierTTLExpiry(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("v1"), time.Minute))
	mr.FastForward(2 * time.Minute)

	val, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisTierDelete(t *testing.T) {
	tier, _ := newTestRedisTier(t)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, "k1", []byte("v1"), time.Minute))
	require.NoError(t, tier.Delete(ctx, "k1"))

	val, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisTierGetErrorAfterServerStops(t *testing.T) {
	tier, mr := newTestRedisTier(t)
	ctx := context.Background()

	mr.Close()

	_, err := tier.Get(ctx, "k1")
	assert.Error(t, err)
	assert.Equal(t, int64(1), tier.Stats().Errors)
}

func TestRedisTierConnectFailure(t *testing.T) {
	cfg := DefaultRedisTierConfig()
	cfg.Addr = "127.0.0.1:1" // nothing listens here
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = 0

	_, err := NewRedisTier(cfg)
	assert.Error(t, err)
}
