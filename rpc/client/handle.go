package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/http"
	"github.com/rcrowley/go-metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sync/atomic"
	"time"
)

// ErrHandleClosed is returned by calls on a closed handle
var ErrHandleClosed = errors.New("transport handle closed")

// fallbackCodec is used for calls if no codec was attached
var fallbackCodec = serializer.NewJSONSerializer()

var tracer = otel.Tracer("github.com/ValentinKolb/dLink/rpc/client")

// Handle is the transport handle returned by the selector. It exposes the same call
// interface for both strategies.
type Handle struct {
	strategy common.Strategy
	link     transport.IRPCClientTransport
	codec    serializer.IRPCSerializer
	headers  map[string]string
	owned    bool // the handle closes the link (batched links only)
	closed   atomic.Bool

	stats    metrics.Registry
	calls    metrics.Timer
	failures metrics.Counter
}

func newHandle(strategy common.Strategy, link transport.IRPCClientTransport, codec serializer.IRPCSerializer, headers map[string]string, owned bool) *Handle {
	h := &Handle{
		strategy: strategy,
		link:     link,
		codec:    codec,
		headers:  headers,
		owned:    owned,
		stats:    metrics.NewRegistry(),
		calls:    metrics.NewTimer(),
		failures: metrics.NewCounter(),
	}

	_ = h.stats.Register("calls", h.calls)
	_ = h.stats.Register("errors", h.failures)
	if batched, ok := link.(http.BatchStats); ok {
		_ = h.stats.Register("batch.size", batched.BatchSizes())
	}
	return h
}

// Strategy returns the strategy of the link behind the handle
func (h *Handle) Strategy() common.Strategy {
	return h.strategy
}

// Codec returns the codec attached by the selector
func (h *Handle) Codec() serializer.IRPCSerializer {
	return h.codec
}

// Headers returns a copy of the headers sent with every request of the handle.
// Socket handles never forward headers.
func (h *Handle) Headers() map[string]string {
	headers := make(map[string]string, len(h.headers))
	for k, v := range h.headers {
		headers[k] = v
	}
	return headers
}

// Link returns the link behind the handle. Socket handles of one selector and socket
// url share the same link.
func (h *Handle) Link() transport.IRPCClientTransport {
	return h.link
}

// Stats returns the call statistics of the handle ("calls" timer, "errors" counter
// and for batched handles the "batch.size" histogram)
func (h *Handle) Stats() metrics.Registry {
	return h.stats
}

// Query calls a procedure without side effects and returns its encoded output
func (h *Handle) Query(ctx context.Context, procedure string, input []byte) ([]byte, error) {
	resp, err := h.Call(ctx, common.NewQueryRequest(procedure, input))
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Mutate calls a procedure with side effects and returns its encoded output
func (h *Handle) Mutate(ctx context.Context, procedure string, input []byte) ([]byte, error) {
	resp, err := h.Call(ctx, common.NewMutationRequest(procedure, input))
	if err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// Call sends a request message and returns the result message.
// Error responses of the server are returned as *common.RemoteError.
// The call is abandoned once ctx is done.
func (h *Handle) Call(ctx context.Context, req *common.Message) (resp *common.Message, err error) {
	if h.closed.Load() {
		return nil, ErrHandleClosed
	}
	if req == nil || !req.IsRequest() {
		return nil, fmt.Errorf("invalid request message")
	}

	ctx, span := tracer.Start(ctx, "rpc."+req.Procedure, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rpc.procedure", req.Procedure),
		attribute.String("rpc.type", req.MsgType.String()),
		attribute.String("rpc.strategy", h.strategy.String()),
		attribute.String("rpc.link", h.link.Name()),
	)
	start := time.Now()
	defer func() {
		h.calls.UpdateSince(start)
		if err != nil {
			h.failures.Inc(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	codec := h.codec
	if codec == nil {
		codec = fallbackCodec
	}

	// Serialize the request
	reqBytes, err := codec.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	// Send the request
	respBytes, err := h.link.Send(ctx, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp = &common.Message{}
	if err := codec.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, &common.RemoteError{Procedure: req.Procedure, Message: resp.Err}
	}

	if resp.MsgType != common.MsgTResult {
		return nil, fmt.Errorf("unexpected message type: %s, expected %s", resp.MsgType, common.MsgTResult)
	}

	return resp, nil
}

// Close releases the handle. Batched handles close their link, socket handles leave
// the shared socket open (see Selector.Shutdown).
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.owned {
		return h.link.Close()
	}
	return nil
}
