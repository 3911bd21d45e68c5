package socket

import (
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/tcp"
	"github.com/ValentinKolb/dLink/rpc/transport/unix"
	"github.com/ValentinKolb/dLink/rpc/transport/ws"
	"net/url"
	"strings"
)

// Endpoint is a parsed socket url
type Endpoint struct {
	// Scheme is one of ws, wss, tcp, unix
	Scheme string
	// Dial is the endpoint passed to the connector: the full url for websockets,
	// host:port for tcp and the socket path for unix
	Dial string
	// Address and Path are used by the server side of websockets
	Address string
	Path    string
}

// Parse parses a socket url (ws://, wss://, tcp://, unix://)
func Parse(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid socket url %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("invalid socket url %q: missing host", raw)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		return Endpoint{Scheme: strings.ToLower(u.Scheme), Dial: u.String(), Address: u.Host, Path: path}, nil
	case "tcp":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("invalid socket url %q: missing host", raw)
		}
		return Endpoint{Scheme: "tcp", Dial: u.Host, Address: u.Host}, nil
	case "unix":
		// unix:///tmp/dlink.sock and unix://relative.sock
		path := u.Path
		if u.Host != "" {
			path = u.Host + u.Path
		}
		if path == "" {
			return Endpoint{}, fmt.Errorf("invalid socket url %q: missing path", raw)
		}
		return Endpoint{Scheme: "unix", Dial: path, Address: path}, nil
	default:
		return Endpoint{}, fmt.Errorf("invalid socket url %q: unsupported scheme %q (expected ws, wss, tcp or unix)", raw, u.Scheme)
	}
}

// NewClientTransport creates the socket link for a socket url. The returned endpoint
// is the value to put into common.ClientConfig.Endpoints.
func NewClientTransport(raw string) (transport.IRPCClientTransport, string, error) {
	ep, err := Parse(raw)
	if err != nil {
		return nil, "", err
	}
	switch ep.Scheme {
	case "tcp":
		return tcp.NewTCPClientTransport(), ep.Dial, nil
	case "unix":
		return unix.NewUnixClientTransport(), ep.Dial, nil
	default:
		return ws.NewWSClientTransport(), ep.Dial, nil
	}
}

// NewServerTransport creates the server side for a socket url
func NewServerTransport(raw string, bufferSize, maxWorkersPerConn int) (transport.IRPCServerTransport, error) {
	ep, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	switch ep.Scheme {
	case "tcp":
		return tcp.NewTCPServerTransport(ep.Address, bufferSize, maxWorkersPerConn), nil
	case "unix":
		return unix.NewUnixServerTransport(ep.Address, bufferSize, maxWorkersPerConn), nil
	case "wss":
		return nil, fmt.Errorf("wss is not served directly, terminate TLS in front of a ws:// endpoint")
	default:
		return ws.NewWSServerTransport(ep.Address, ep.Path, bufferSize, maxWorkersPerConn), nil
	}
}
