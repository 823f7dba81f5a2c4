package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentmux/agentmux/pkg/types"
)

func BenchmarkKeyBuilderBuild(b *testing.B) {
	kb := NewKeyBuilder("", nil, nil)
	req := &types.Request{
		Model:        "m1",
		SystemPrompt: "you are a helpful assistant",
		UserPrompt:   "summarize the following document",
		History: []types.Message{
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "hi, how can I help"},
		},
		Settings: map[string]any{"temperature": 0.2, "max_tokens": 512},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		kb.Build(req)
	}
}

func BenchmarkMemoryTierGet(b *testing.B) {
	tier := NewMemoryTier(DefaultMemoryTierConfig())
	defer tier.Close()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_ = tier.Set(ctx, fmt.Sprintf("k%d", i), []byte("payload"), time.Minute)
	}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = tier.Get(ctx, fmt.Sprintf("k%d", i%100))
			i++
		}
	})
}

func BenchmarkResponseCacheLocalHit(b *testing.B) {
	local := NewMemoryTier(DefaultMemoryTierConfig())
	rc := NewResponseCache(local, nil, nil, DefaultResponseCacheConfig(), nil)
	defer rc.Close()
	ctx := context.Background()

	rc.Set(ctx, "k1", &types.Response{Model: "m1", Content: "cached"}, 0)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var resp types.Response
		rc.Get(ctx, "k1", &resp)
	}
}
