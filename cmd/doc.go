// Package cmd implements the command-line interface of dLink. It provides a
// hierarchical command structure for running the RPC server and calling it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the RPC server with the batched http and the socket endpoint
//   - call: Calls a procedure (call) or benchmarks it (perf) over the transport selected for --context
//   - token: Issues session tokens for the server's session provider
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can be set as environment variable DLINK_<FLAG>, .env and .env.local are
// loaded on startup. See dlink -help for a list of all commands.
package cmd
