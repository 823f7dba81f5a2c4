// Package cache provides request fingerprinting and the two-tier response
// cache. The local tier is a bounded in-memory store with TTL eviction;
// the optional shared tier is Redis. Cache failures never propagate to
// callers: every operation degrades to a miss or a no-op.
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Tier is one layer of the response cache.
type Tier interface {
	// Get retrieves a value. Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0 the tier default
	// is used.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Ping checks if the tier is healthy.
	Ping(ctx context.Context) error

	// Close releases any resources held by the tier.
	Close() error

	// Stats returns tier statistics.
	Stats() Stats
}

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// Outcome is the typed result of a cache lookup. Failures are distinguished
// from misses so tests and metrics can tell "not cached" from "cache broken",
// but both are served identically: no cached value.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeFailure
)

// String implements fmt.Stringer for log output.
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeFailure:
		return "failure"
	default:
		return "miss"
	}
}

// Tier names as recorded against metrics.
const (
	TierLocal  = "local"
	TierShared = "shared"
)

// Lookup is the result of a ResponseCache lookup: the outcome plus the tier
// that produced it (empty for a full miss).
type Lookup struct {
	Outcome Outcome
	Tier    string
}

// Serializer converts cached values to and from bytes. The shared tier
// stores serializer-defined bytes; any implementation that round-trips
// (Unmarshal(Marshal(x)) == x) may replace the default.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default serializer: canonical UTF-8 JSON with
// stable field naming, no pretty-printing, empty fields omitted.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
