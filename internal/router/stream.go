package router

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmux/agentmux/internal/metrics"
	"github.com/agentmux/agentmux/pkg/backend"
	routeerr "github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/types"
)

// RouteStream serves one streaming request. Streaming responses bypass
// the cache in both directions: partial output is not cacheable and a
// cached response cannot be replayed as a stream. Failover covers engine
// acquisition and stream opening only; once the first chunk can flow, a
// mid-stream failure is surfaced to the caller as-is.
func (r *Router) RouteStream(ctx context.Context, req *types.Request) (backend.StreamHandler, error) {
	ctx, span := r.tracer.Start(ctx, "agentmux.route_stream",
		trace.WithAttributes(attribute.String("gen_ai.request.model", req.Model)))
	defer span.End()

	order, err := r.attemptOrder(req)
	if err != nil {
		return nil, err
	}

	attempts := 1
	if r.retryEnabled {
		attempts += r.maxRetries
	}
	if attempts > len(order) {
		attempts = len(order)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		model := order[i]

		engine, err := r.pool.Acquire(ctx, model)
		if err != nil {
			r.collector.RecordError(model.ID, string(routeerr.KindBackendFailure), err)
			lastErr = routeerr.NewBackendError(model.ID, err)
			continue
		}

		trackingID := r.collector.StartRequest(model.ID, metrics.KindStream)
		start := time.Now()

		handler, err := engine.InvokeStream(ctx, req)
		if err != nil {
			r.collector.EndRequest(trackingID, false, time.Since(start), nil)
			r.collector.RecordError(model.ID, string(routeerr.KindBackendFailure), err)
			lastErr = routeerr.NewBackendError(model.ID, err)
			r.logger.Warn("stream open failed",
				"model", model.ID, "attempt", i+1, "attempts", attempts, "error", err)
			continue
		}

		return &trackedStream{
			inner:      handler,
			router:     r,
			model:      model.ID,
			trackingID: trackingID,
			started:    start,
		}, nil
	}

	if lastErr == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, routeerr.NewRoutingError("request canceled before dispatch", ctxErr)
		}
		return nil, routeerr.NewRoutingError("no backend attempt was made", nil)
	}
	return nil, lastErr
}

// trackedStream wraps a backend stream so the tracked request ends
// exactly once, whether the stream drains to EOF, fails mid-flight, or
// is closed early by the caller.
type trackedStream struct {
	inner      backend.StreamHandler
	router     *Router
	model      string
	trackingID string
	started    time.Time

	endOnce sync.Once
	usage   *types.Usage
}

func (s *trackedStream) end(success bool) {
	s.endOnce.Do(func() {
		s.router.collector.EndRequest(s.trackingID, success, time.Since(s.started), s.usage)
	})
}

// Next returns the next chunk. EOF ends tracking as success; any other
// error ends it as failure and records the error kind.
func (s *trackedStream) Next() (*types.StreamChunk, error) {
	chunk, err := s.inner.Next()
	if err != nil {
		if err == io.EOF {
			s.end(true)
		} else {
			s.router.collector.RecordError(s.model, string(routeerr.KindBackendFailure), err)
			s.end(false)
		}
		return chunk, err
	}
	if chunk != nil && chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	if chunk != nil && chunk.Done {
		s.end(true)
	}
	return chunk, nil
}

// Close releases the stream. An early close on an undrained stream still
// counts as a successful request: the caller got what it asked for.
func (s *trackedStream) Close() error {
	s.end(true)
	return s.inner.Close()
}
