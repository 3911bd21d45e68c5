package ws

import (
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/base"
	"github.com/gorilla/websocket"
	"net"
	"time"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultBufferSize       = 64 * 1024 // 64 KB
)

// clientConnector implements the IClientConnector interface for websockets
type clientConnector struct {
	dialer *websocket.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) Name() string {
	return "ws"
}

// Connect dials a websocket url (ws:// or wss://)
func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	conn, _, err := c.dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn, nil), nil
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	// the long-lived stream is never idle-timed out, request timeouts apply per call
	return conn.SetDeadline(time.Time{})
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewWSClientTransport creates a new websocket client transport
func NewWSClientTransport() transport.IRPCClientTransport {
	return NewWSClientTransportWithDialer(&websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: defaultHandshakeTimeout,
		ReadBufferSize:   defaultBufferSize,
		WriteBufferSize:  defaultBufferSize,
	})
}

// NewWSClientTransportWithDialer creates a new websocket client transport using the given dialer
func NewWSClientTransportWithDialer(dialer *websocket.Dialer) transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{dialer: dialer})
}
