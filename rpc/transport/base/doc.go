// Package base provides the persistent socket link and its server counterpart,
// independent of the specific network protocol (websocket, TCP, Unix sockets). It is
// extended with protocol-specific connectors.
//
// The package focuses on:
//   - One long-lived duplex stream per endpoint, shared by all concurrent callers
//   - Frame-based message protocol with requestID tracking
//   - Response correlation by request ID, responses may arrive out of order
//   - Reconnection of broken streams and optional retries with backoff
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation. Supports multiple connections per
//     endpoint (round-robin) for high-throughput scenarios; the default is one.
//
//   - serverTransport: Core server implementation that accepts connections and runs
//     requests in a bounded number of workers per connection.
//
//   - WriteFrame/ReadFrame: The frame codec, also used as the body format of batched
//     HTTP requests.
//
// Frame Format:
//
//	[8 byte requestID][4 byte payload length][payload]
//
// Thread Safety:
//
//	All public methods are thread-safe. Frame writes on a connection are serialized,
//	a single reader goroutine per connection distributes responses.
package base
