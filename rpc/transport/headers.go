package transport

import (
	"context"
	"strings"
)

type headersKey struct{}

// WithHeaders returns a context carrying the request headers. Names are lower-cased.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	normalized := make(map[string]string, len(headers))
	for name, value := range headers {
		normalized[strings.ToLower(name)] = value
	}
	return context.WithValue(ctx, headersKey{}, normalized)
}

// HeadersFromContext returns the request headers stored in ctx, or nil
func HeadersFromContext(ctx context.Context) map[string]string {
	headers, _ := ctx.Value(headersKey{}).(map[string]string)
	return headers
}

// Header returns a single request header stored in ctx (case-insensitive)
func Header(ctx context.Context, name string) string {
	return HeadersFromContext(ctx)[strings.ToLower(name)]
}
