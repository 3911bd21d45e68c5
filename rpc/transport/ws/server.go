package ws

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/base"
	"github.com/gorilla/websocket"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var Logger = base.Logger

// serverConnector implements the IServerConnector interface for websockets.
// Upgraded HTTP requests are handed to the base server through a net.Listener.
type serverConnector struct {
	address string
	path    string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) Name() string {
	return "ws"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	tcpListener, err := net.Listen("tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket listener: %w", err)
	}

	l := newUpgradeListener(tcpListener, config.AllowedOrigins)
	mux := http.NewServeMux()
	mux.Handle(c.path, l)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(tcpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("websocket http server stopped: %v", err)
		}
	}()

	return l, nil
}

// --------------------------------------------------------------------------
// Upgrade Listener
// --------------------------------------------------------------------------

// upgradeListener is a net.Listener whose connections are websocket upgrades
type upgradeListener struct {
	addr      net.Addr
	server    *http.Server
	upgrader  *websocket.Upgrader
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newUpgradeListener(tcpListener net.Listener, allowedOrigins []string) *upgradeListener {
	return &upgradeListener{
		addr: tcpListener.Addr(),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  defaultBufferSize,
			WriteBufferSize: defaultBufferSize,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// originChecker accepts upgrades without an Origin header (non-browser clients), from
// the server's own host and from the allowed origins. Session cookies ride along on
// every browser upgrade, so any other origin is refused.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "/"))] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		u, err := url.Parse(origin)
		if err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			return true
		}
		Logger.Warningf("refused websocket upgrade from %s with origin %q", r.RemoteAddr, origin)
		return false
	}
}

// ServeHTTP upgrades the request and queues the connection for Accept
func (l *upgradeListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an error status
		Logger.Warningf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	wrapped := newWSConn(conn, headerMap(r.Header))
	select {
	case l.conns <- wrapped:
	case <-l.done:
		_ = wrapped.Close()
	}
}

func (l *upgradeListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *upgradeListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

func (l *upgradeListener) Addr() net.Addr {
	return l.addr
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewWSServerTransport creates a new websocket server transport listening on address
// (host:port) and accepting upgrades on path
func NewWSServerTransport(address, path string, bufferSize, maxWorkersPerConn int) transport.IRPCServerTransport {
	if path == "" {
		path = "/"
	}
	return base.NewBaseServerTransport(&serverConnector{address: address, path: path}, bufferSize, maxWorkersPerConn)
}
