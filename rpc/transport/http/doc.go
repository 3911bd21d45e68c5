// Package http implements the batched link: a connectionless RPC transport over HTTP
// that coalesces calls issued close together into one network round trip. It is used
// for server-side renders, which are short-lived and gain nothing from a persistent
// connection.
//
// The package focuses on:
//   - Client-side batching of concurrent calls (httpClientTransport)
//   - Server-side handling of batch requests (httpServerTransport)
//   - Forwarding the configured request headers on every batch request
//   - Round-robin load balancing and retries across multiple server endpoints
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Send pushes the call into a
//     lock-free MPSC queue (lib/queue). A single batching goroutine opens a batch with
//     the first queued call and closes it after the batch window (ClientConfig.BatchWindowMillis)
//     or when MaxBatchSize calls were collected. Every batch is sent as one POST.
//
//   - httpServerTransport: Implements IRPCServerTransport. It serves POST /api/rpc,
//     runs the calls of a batch concurrently and answers with one frame per call.
//
// Wire Format:
//
//	Request and response bodies are sequences of frames (see base.WriteFrame). The request
//	ID of a frame is the index of the call within its batch, the response frame of a call
//	carries the same ID. A non-200 answer fails every call of the batch.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. Close flushes the
//	calls that are already queued and rejects new ones with base.ErrTransportClosed.
package http
