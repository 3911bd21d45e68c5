// Package common provides core data structures and utilities shared across the
// dLink RPC client and server.
//
// Key Components:
//
//   - ExecutionContext: Where the client code runs (server-side render or browser),
//     together with the inbound request headers of a server-side render. It is the only
//     input the transport selector uses to choose a link.
//
//   - Strategy: The kind of link behind a transport handle (Batched or Socket).
//
//   - Message: Envelope of a single RPC call, used for requests and responses.
//
//   - ClientConfig / ServerConfig: Link tuning and server settings, with pretty
//     printers used by the command line tools.
//
//   - ConfigurationError / ConnectionError / RemoteError: The error kinds surfaced to
//     callers.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's logger
//     package, giving every component a named, leveled logger.
package common
