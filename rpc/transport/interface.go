package transport

import (
	"context"
	"github.com/ValentinKolb/dLink/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received.
// ctx carries the headers of the inbound request or connection (see HeadersFromContext).
type ServerHandleFunc func(ctx context.Context, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer of the server
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and blocks while serving requests
	Listen(config common.ServerConfig) error
	// Close stops listening, Listen returns after Close was called
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport (a link)
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	// The call is abandoned if ctx is done before the response arrives
	Send(ctx context.Context, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
	// Name returns the name of the transport type (e.g. "http", "ws")
	Name() string
}

// IPersistentTransport is implemented by links that hold persistent connections
type IPersistentTransport interface {
	// Alive reports whether at least one connection is established
	Alive() bool
	// Redial re-establishes dropped connections and fails if none could be restored
	Redial() error
}
