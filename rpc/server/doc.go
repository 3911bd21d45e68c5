// Package server implements the RPC server: a registry of named procedures that is
// served over the batched HTTP endpoint and the socket endpoint at the same time.
//
// Key Components:
//
//   - Server: Holds the procedure registry (Register, Query, Mutation) and dispatches
//     decoded requests to it. Unknown procedures, kind mismatches (a mutation called
//     as a query), decode failures, procedure errors and panics are answered with
//     error messages, the transports never see them.
//
//   - NewRPCServer: Creates the transports from the config. The HTTP transport serves
//     POST /api/rpc and GET /metrics (Prometheus text format via VictoriaMetrics/metrics),
//     the socket transport is chosen by the scheme of the socket endpoint
//     (ws://, tcp://, unix://).
//
//   - Sessions: If a session secret is configured, every call is run with the session
//     resolved from its forwarded headers (see the session package).
//
// Usage Example:
//
//	config := common.ServerConfig{
//		HTTPEndpoint:      ":3000",
//		SocketEndpoint:    "ws://:3001",
//		TimeoutSecond:     5,
//		MaxWorkersPerConn: 64,
//		LogLevel:          "info",
//	}
//
//	s, err := server.NewRPCServer(config, serializer.NewJSONSerializer())
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = s.Query("greeting.hello", helloProcedure)
//
//	if err := s.Serve(); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Procedures are called concurrently from all transports and must be thread-safe.
//	Procedures can be registered while the server is running.
package server
