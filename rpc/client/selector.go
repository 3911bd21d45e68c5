package client

import (
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/http"
	"github.com/ValentinKolb/dLink/rpc/transport/socket"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("selector")

// TransportConfig is the input of the transport selector.
// It is constructed once at process start (see cmd/util.GetTransportConfig).
type TransportConfig struct {
	// BaseURL is required: an absolute url (scheme and host) or a root-relative path
	BaseURL string
	// WSURL is the socket url for browser contexts, common.DefaultWSURL if empty
	WSURL string
	// Codec is attached to the handle unchanged
	Codec serializer.IRPCSerializer
	// Client holds the tuning of the link (timeouts, retries, batch window...).
	// Endpoints and Headers are set by the selector.
	Client common.ClientConfig
}

// BatchedFactory creates an unconnected batched link
type BatchedFactory func() transport.IRPCClientTransport

// SocketFactory creates an unconnected socket link for a socket url and returns the
// endpoint to connect it to
type SocketFactory func(socketURL string) (transport.IRPCClientTransport, string, error)

// Selector maps an execution context to a transport handle. It owns the persistent
// socket links of the process: one per socket url, opened on first use and shared by
// every handle created for that url afterwards.
type Selector struct {
	newBatched BatchedFactory
	newSocket  SocketFactory
	sockets    *xsync.MapOf[string, transport.IRPCClientTransport]
	dials      singleflight.Group
}

// NewSelector creates a selector using the http batched link and the socket links
// of the socket package (ws, wss, tcp, unix)
func NewSelector() *Selector {
	return NewSelectorWith(http.NewHttpClientTransport, socket.NewClientTransport)
}

// NewSelectorWith creates a selector with custom link factories
func NewSelectorWith(batched BatchedFactory, sock SocketFactory) *Selector {
	return &Selector{
		newBatched: batched,
		newSocket:  sock,
		sockets:    xsync.NewMapOf[string, transport.IRPCClientTransport](),
	}
}

var defaultSelector = NewSelector()

// SelectTransport selects a transport with the process wide selector
// (see Selector.SelectTransport)
func SelectTransport(ctx common.ExecutionContext, cfg TransportConfig) (*Handle, error) {
	return defaultSelector.SelectTransport(ctx, cfg)
}

// Shutdown closes the socket links of the process wide selector
func Shutdown() error {
	return defaultSelector.Shutdown()
}

// SelectTransport returns a handle for the execution context:
//
//   - Server: a Batched handle targeting BaseURL + common.RPCEndpointSuffix. No
//     connection is opened. The inbound request headers are sent with every batch.
//   - Browser: a Socket handle on the persistent link to WSURL (common.DefaultWSURL
//     if empty). The link is dialed on first use and reused afterwards.
//
// An invalid BaseURL or context fails with *common.ConfigurationError, a failed dial
// with *common.ConnectionError. Failed dials are not retried and not cached.
func (s *Selector) SelectTransport(ctx common.ExecutionContext, cfg TransportConfig) (*Handle, error) {
	if err := common.ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}

	switch ctx.Kind() {
	case common.ExecServer:
		return s.selectBatched(ctx, cfg)
	case common.ExecBrowser:
		return s.selectSocket(cfg)
	default:
		return nil, &common.ConfigurationError{
			Field:  "execution context",
			Reason: fmt.Sprintf("%s (expected server or browser)", ctx.Kind()),
		}
	}
}

// Shutdown closes every socket link opened by the selector. Handles created before
// fail with transport errors afterwards.
func (s *Selector) Shutdown() error {
	var firstErr error
	s.sockets.Range(func(url string, link transport.IRPCClientTransport) bool {
		if err := link.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.sockets.Delete(url)
		Logger.Debugf("Closed socket link to %s", url)
		return true
	})
	return firstErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Selector) selectBatched(ctx common.ExecutionContext, cfg TransportConfig) (*Handle, error) {
	config := cfg.Client
	config.Endpoints = []string{common.JoinEndpoint(cfg.BaseURL)}
	config.Headers = ctx.Headers()

	link := s.newBatched()
	if err := link.Connect(config); err != nil {
		return nil, err
	}

	Logger.Debugf("Selected batched link to %s", config.Endpoints[0])
	return newHandle(common.Batched, link, cfg.Codec, config.Headers, true), nil
}

func (s *Selector) selectSocket(cfg TransportConfig) (*Handle, error) {
	socketURL := cfg.WSURL
	isDefault := socketURL == ""
	if isDefault {
		socketURL = common.DefaultWSURL
	}

	if _, err := socket.Parse(socketURL); err != nil {
		return nil, &common.ConfigurationError{Field: "socket url", Reason: err.Error()}
	}

	link, err := s.socketFor(socketURL, cfg.Client)
	if err != nil {
		return nil, &common.ConnectionError{URL: socketURL, Default: isDefault, Err: err}
	}

	Logger.Debugf("Selected socket link to %s", socketURL)
	return newHandle(common.Socket, link, cfg.Codec, map[string]string{}, false), nil
}

// socketFor returns the open link for socketURL and dials it if there is none.
// A cached link whose connections all dropped is redialed before it is handed out.
// Concurrent first selections share a single dial.
func (s *Selector) socketFor(socketURL string, tuning common.ClientConfig) (transport.IRPCClientTransport, error) {
	if link, ok := s.sockets.Load(socketURL); ok && alive(link) {
		return link, nil
	}

	v, err, _ := s.dials.Do(socketURL, func() (interface{}, error) {
		if link, ok := s.sockets.Load(socketURL); ok {
			if alive(link) {
				return link, nil
			}
			Logger.Warningf("Socket link to %s is down, redialing", socketURL)
			if err := link.(transport.IPersistentTransport).Redial(); err != nil {
				return nil, err
			}
			return link, nil
		}

		link, endpoint, err := s.newSocket(socketURL)
		if err != nil {
			return nil, err
		}

		config := tuning
		config.Endpoints = []string{endpoint}
		config.Headers = nil
		if err := link.Connect(config); err != nil {
			_ = link.Close()
			return nil, err
		}

		s.sockets.Store(socketURL, link)
		Logger.Infof("Opened %s socket link to %s", link.Name(), socketURL)
		return link, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(transport.IRPCClientTransport), nil
}

// alive reports whether a link can carry calls. Links without persistent
// connections are always alive.
func alive(link transport.IRPCClientTransport) bool {
	p, ok := link.(transport.IPersistentTransport)
	return !ok || p.Alive()
}
