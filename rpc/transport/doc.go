// Package transport defines the interfaces and abstractions for RPC communication.
// It provides a common contract that all links and server transports fulfill,
// enabling protocol-agnostic communication.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side links. Implemented by the batched
//     HTTP link (package http) and the persistent socket link (package base with the
//     ws, tcp and unix connectors).
//
//   - IRPCServerTransport: Interface for server-side transports that receive requests
//     and pass them to a ServerHandleFunc.
//
//   - WithHeaders / HeadersFromContext: Request headers travel to the handler in the
//     context, so procedures can resolve sessions from forwarded headers.
package transport
