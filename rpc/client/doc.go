// Package client selects the RPC transport for the current execution environment and
// provides the handle used to call remote procedures.
//
// Server-side renders are short-lived and get a Batched handle: calls issued close
// together share one HTTP request and the headers of the inbound request are forwarded.
// Browser-side clients are long-lived and get a Socket handle on one persistent duplex
// connection that is shared by every handle of the process.
//
// Key Components:
//
//   - Selector: Maps an ExecutionContext and a TransportConfig to a Handle and owns the
//     socket links of the process. SelectTransport and Shutdown use a process wide
//     selector.
//
//   - Handle: Uniform call interface (Call, Query, Mutate) for both strategies. It
//     serializes the request with the attached codec, sends it over the link and maps
//     error responses to *common.RemoteError. Every call is recorded in the handle's
//     go-metrics registry and traced as an OpenTelemetry client span.
//
// Usage Example:
//
//	// once at process start
//	cfg := client.TransportConfig{
//		BaseURL: common.ResolveBaseURL(common.ExecServer, os.Getenv("VERCEL_URL"), 3000),
//		WSURL:   os.Getenv("DLINK_WS_URL"),
//		Codec:   serializer.NewJSONSerializer(),
//	}
//
//	// per server-side render
//	h, err := client.SelectTransport(common.ServerContextFromRequest(r), cfg)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	out, err := h.Query(ctx, "greeting.hello", []byte(`{"name":"dLink"}`))
//
// Errors:
//
//	*common.ConfigurationError for an invalid base url, socket url or execution context.
//	*common.ConnectionError if the socket link could not be opened. The selector does
//	not retry, the next selection dials again.
package client
