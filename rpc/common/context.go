package common

import (
	"net/http"
	"strings"
)

// --------------------------------------------------------------------------
// Execution Context
// --------------------------------------------------------------------------

// ExecutionKind tells where the client code is running
type ExecutionKind uint8

const (
	// ExecUnknown is the zero value and is rejected by the transport selector
	ExecUnknown ExecutionKind = iota
	// ExecServer is a server-side render: short-lived, may carry an inbound request
	ExecServer
	// ExecBrowser is a long-lived browser-side client without an inbound request
	ExecBrowser
)

// String returns the string representation of an ExecutionKind.
func (k ExecutionKind) String() string {
	switch k {
	case ExecServer:
		return "server"
	case ExecBrowser:
		return "browser"
	default:
		return "unknown"
	}
}

// ParseExecutionKind converts "server" or "browser" (case-insensitive) to an ExecutionKind
func ParseExecutionKind(s string) (ExecutionKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "ssr":
		return ExecServer, true
	case "browser", "client":
		return ExecBrowser, true
	default:
		return ExecUnknown, false
	}
}

// InboundRequest is the request a server-side render is answering.
// Only the headers are relevant to the RPC client.
type InboundRequest struct {
	Headers map[string]string
}

// ExecutionContext is determined once per client initialization and never mutated.
// Use ServerContext or BrowserContext to construct one.
type ExecutionContext struct {
	kind    ExecutionKind
	request *InboundRequest
}

// ServerContext creates a server-side execution context. headers may be nil if the
// render is not bound to an inbound request. The map is copied.
func ServerContext(headers map[string]string) ExecutionContext {
	ctx := ExecutionContext{kind: ExecServer}
	if headers != nil {
		copied := make(map[string]string, len(headers))
		for k, v := range headers {
			copied[k] = v
		}
		ctx.request = &InboundRequest{Headers: copied}
	}
	return ctx
}

// ServerContextFromRequest creates a server-side execution context from an inbound
// *http.Request. Header names are lower-cased and multi-valued headers joined with ", ".
func ServerContextFromRequest(r *http.Request) ExecutionContext {
	if r == nil {
		return ServerContext(nil)
	}
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return ServerContext(headers)
}

// BrowserContext creates a browser-side execution context
func BrowserContext() ExecutionContext {
	return ExecutionContext{kind: ExecBrowser}
}

// Kind returns where the client code is running
func (c ExecutionContext) Kind() ExecutionKind {
	return c.kind
}

// Request returns the inbound request of a server context, or nil
func (c ExecutionContext) Request() *InboundRequest {
	return c.request
}

// Headers returns a copy of the inbound request headers. It is empty for browser
// contexts and server contexts without a request.
func (c ExecutionContext) Headers() map[string]string {
	headers := make(map[string]string)
	if c.request == nil {
		return headers
	}
	for k, v := range c.request.Headers {
		headers[k] = v
	}
	return headers
}

func (c ExecutionContext) String() string {
	return c.kind.String()
}
