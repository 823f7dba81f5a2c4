package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/pkg/types"
)

// DefaultKeyPrefix namespaces this subsystem's keys in a shared key space.
const DefaultKeyPrefix = "agentmux:resp:"

// hashPrefixLen bounds key length: each SHA-256 digest is truncated to 16
// hex characters. Truncation collisions are an accepted cache-correctness
// risk at this length; there is no full-length fallback.
const hashPrefixLen = 16

// KeyBuilder deterministically fingerprints a request into a cache key.
// The key is a pure function of request content: same content, same key.
type KeyBuilder struct {
	prefix     string
	serializer Serializer
	logger     *observability.Logger
}

// NewKeyBuilder creates a key builder with the given key-space prefix.
// An empty prefix falls back to DefaultKeyPrefix.
func NewKeyBuilder(prefix string, serializer Serializer, logger *observability.Logger) *KeyBuilder {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KeyBuilder{prefix: prefix, serializer: serializer, logger: logger}
}

// Build returns the cache key for req:
//
//	<prefix><model>:<h16(system)>:<h16(user)>[:<h16(history)>][:<h16(settings)>]
//
// where h16 is a SHA-256 digest truncated to 16 hex characters. Optional
// segments are present only when the corresponding field is non-empty.
// If the execution settings cannot be serialized, Build never fails:
// it returns a fresh random key instead, deliberately defeating caching
// for that request rather than risking a cross-request collision.
func (b *KeyBuilder) Build(req *types.Request) string {
	var sb strings.Builder
	sb.WriteString(b.prefix)
	sb.WriteString(req.Model)

	if req.SystemPrompt != "" {
		sb.WriteByte(':')
		sb.WriteString(hash16(req.SystemPrompt))
	}

	sb.WriteByte(':')
	sb.WriteString(hash16(req.UserPrompt))

	if len(req.History) > 0 {
		var hb strings.Builder
		for _, m := range req.History {
			hb.WriteString(string(m.Role))
			hb.WriteByte('\x1f')
			hb.WriteString(m.Content)
			hb.WriteByte('\x1e')
		}
		sb.WriteByte(':')
		sb.WriteString(hash16(hb.String()))
	}

	if len(req.Settings) > 0 {
		data, err := b.serializer.Marshal(req.Settings)
		if err != nil {
			return b.fallbackKey(req, err)
		}
		sb.WriteByte(':')
		sb.WriteString(hash16(string(data)))
	}

	return sb.String()
}

// fallbackKey builds a guaranteed-unique key from the prefix and a fresh
// random identifier.
func (b *KeyBuilder) fallbackKey(req *types.Request, cause error) string {
	b.logger.Warn("cache key generation failed, using uncacheable fallback key",
		"model", req.Model, "error", cause)
	return b.prefix + "fallback:" + uuid.NewString()
}

func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}
