// Package rpc provides the remote procedure call layer of dLink. Clients pick their
// transport from the environment they run in: server-side renders batch calls into
// HTTP requests, browsers share one persistent socket.
//
// The package is organized into several subpackages:
//
//   - common: Message protocol, execution contexts, configuration structures,
//     error types and logging.
//
//   - transport: Link abstractions with pluggable implementations (batched HTTP,
//     websocket, TCP and Unix sockets) and header forwarding helpers.
//
//   - serializer: Message serialization (Binary, JSON, GOB). The codec chosen by the
//     caller is attached to every handle unchanged.
//
//   - client: The transport selector and the call handles it returns.
//
//   - server: Procedure registry and dispatch, served over all transports at once.
//
//   - session: Session tokens resolved from forwarded headers.
package rpc
