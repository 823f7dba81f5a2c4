// Package backend defines the interface consumed from backend execution
// engines. Engines are opaque to the routing subsystem: given a model
// identifier they execute a prompt and return text or a token stream.
package backend

import (
	"context"

	"github.com/agentmux/agentmux/pkg/types"
)

// Engine executes generation requests for a single model deployment.
// Implementations live outside this module; the kernel pool owns their
// lifecycle, one handle per model identifier.
type Engine interface {
	// Invoke executes the request and returns the full response.
	Invoke(ctx context.Context, req *types.Request) (*types.Response, error)

	// InvokeStream executes the request and returns a stream of partial
	// responses. The caller must Close the handler.
	InvokeStream(ctx context.Context, req *types.Request) (StreamHandler, error)
}

// StreamHandler iterates over chunks of a streaming response.
type StreamHandler interface {
	// Next returns the next chunk from the stream.
	// Returns io.EOF when the stream is complete.
	Next() (*types.StreamChunk, error)

	// Close releases resources associated with the stream.
	Close() error
}
