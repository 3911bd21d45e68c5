package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTransportClosed is returned by Send after Close was called
var ErrTransportClosed = errors.New("transport closed")

const (
	// minReconnectBackoff and maxReconnectBackoff bound the delay between reconnect attempts
	minReconnectBackoff = 50 * time.Millisecond
	maxReconnectBackoff = 2 * time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// Name returns the name of the transport type (e.g., "ws", "tcp")
	Name() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	stopCh       chan struct{} // Close signal for the reader goroutine
	restored     chan struct{} // Wakes the reader after a connection was established
	requestChans *xsync.MapOf[uint64, chan responseResult]
	connMu       sync.Mutex // Protects the connection itself
	writeMu      sync.Mutex // Serializes frame writes
	parent       *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (ws, tcp, unix)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex uint64 // Atomic counter for Round Robin
	nextRequestID uint64 // Atomic counter for unique request IDs
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for ws, tcp, unix)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Name() string {
	return t.connector.Name()
}

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := 1
	if config.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.ConnectionsPerEndpoint
	}

	var lastErr error
	for _, endpoint := range config.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				stopCh:       make(chan struct{}),
				restored:     make(chan struct{}, 1),
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
				parent:       t,
			}

			// Establish the initial connection
			if err := clientConn.ensure(); err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				lastErr = err
				continue
			}

			t.connectionsMu.Lock()
			t.connections = append(t.connections, clientConn)
			t.connectionsMu.Unlock()

			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			// Start the response reader
			go clientConn.readResponses()
		}
	}

	t.connectionsMu.RLock()
	connected := len(t.connections)
	t.connectionsMu.RUnlock()

	if connected == 0 {
		return fmt.Errorf("failed to connect to any endpoint: %w", lastErr)
	}

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		connected, len(config.Endpoints)*connectionsPerEP, len(config.Endpoints), t.connector.Name())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) (resp []byte, err error) {
	if t.stopping.Load() {
		return nil, ErrTransportClosed
	}

	// Every attempt gets its own request ID, a late answer to an abandoned
	// attempt must not be delivered to the next one
	send := func(connection *clientConnection) ([]byte, error) {
		requestID := atomic.AddUint64(&t.nextRequestID, 1)

		// A dropped connection is restored on demand
		conn := connection.current()
		if conn == nil {
			if err := connection.ensure(); err != nil {
				return nil, fmt.Errorf("connection is closed: %w", err)
			}
			if conn = connection.current(); conn == nil {
				return nil, fmt.Errorf("connection is closed")
			}
		}

		respCh := make(chan responseResult, 1)
		connection.requestChans.Store(requestID, respCh)
		defer connection.requestChans.Delete(requestID)

		connection.writeMu.Lock()
		if t.config.TimeoutSecond > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Duration(t.config.TimeoutSecond) * time.Second))
		}
		err := WriteFrame(conn, requestID, req)
		connection.writeMu.Unlock()

		if err != nil {
			return nil, err
		}

		// Wait for response, timeout or cancellation
		var timeoutCh <-chan time.Time
		if t.config.TimeoutSecond > 0 {
			timer := time.NewTimer(time.Duration(t.config.TimeoutSecond) * time.Second)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case result := <-respCh:
			return result.data, result.err
		case <-timeoutCh:
			return nil, fmt.Errorf("request timed out")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// We always try at least once, and up to RetryCount times
	maxRetries := t.config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	backoffMs := 50

	for i := 0; i < maxRetries; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no active connections available")
		}

		data, err := send(conn)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IPersistentTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Alive() bool {
	if t.stopping.Load() {
		return false
	}

	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	for _, conn := range t.connections {
		if conn.current() != nil {
			return true
		}
	}
	return false
}

func (t *clientTransport) Redial() error {
	if t.stopping.Load() {
		return ErrTransportClosed
	}

	t.connectionsMu.RLock()
	connections := t.connections
	t.connectionsMu.RUnlock()

	if len(connections) == 0 {
		return fmt.Errorf("no connections to redial")
	}

	restored := 0
	var lastErr error
	for _, conn := range connections {
		if err := conn.ensure(); err != nil {
			lastErr = err
			continue
		}
		restored++
	}
	if restored == 0 {
		return lastErr
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	var index uint64
	if len(t.connections) > 1 {
		index = atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	}
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, conn := range t.connections {
		// Signal reader goroutine to stop, the blocked read returns once the conn is closed
		close(conn.stopCh)

		conn.connMu.Lock()
		if conn.conn != nil {
			_ = conn.conn.Close()
		}
		conn.connMu.Unlock()

		conn.failPending(ErrTransportClosed)
	}

	t.connections = nil
}

// current returns the active net.Conn of the connection
func (c *clientConnection) current() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// failPending delivers err to every request waiting on this connection
func (c *clientConnection) failPending(err error) {
	c.requestChans.Range(func(requestID uint64, respCh chan responseResult) bool {
		select {
		case respCh <- responseResult{nil, err}:
		default:
		}
		return true
	})
}

// readResponses reads responses in a loop and distributes them to waiting requests.
// Responses are matched by request ID and may arrive in any order.
func (c *clientConnection) readResponses() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn := c.current()
		if conn == nil {
			if !c.restore() {
				return
			}
			continue
		}

		requestID, data, err := ReadFrame(conn, nil)
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}

			// The stream is unusable, fail everything in flight and restore it
			Logger.Warningf("Error reading from %s: %v", c.endpoint, err)
			c.drop(conn)
			c.failPending(fmt.Errorf("error reading response: %w", err))

			if !c.restore() {
				return
			}
			continue
		}

		if respCh, found := c.requestChans.Load(requestID); found {
			select {
			case respCh <- responseResult{data, nil}:
			default:
			}
		} else {
			// The caller gave up (timeout or cancellation)
			Logger.Debugf("Received response for unknown request ID %d", requestID)
		}
	}
}

// restore reconnects with exponential backoff until a connection is established
// (by this loop or by a caller of ensure) or the connection is closed.
// It returns false if the connection was closed.
func (c *clientConnection) restore() bool {
	backoff := minReconnectBackoff
	for {
		err := c.ensure()
		if err == nil {
			return true
		}
		if errors.Is(err, ErrTransportClosed) {
			return false
		}
		Logger.Warningf("Failed to reconnect to %s, retrying in %s: %v", c.endpoint, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-c.stopCh:
			timer.Stop()
			return false
		case <-c.restored:
		case <-timer.C:
		}
		timer.Stop()
		backoff = min(2*backoff, maxReconnectBackoff)
	}
}

// drop closes conn if it still is the active connection
func (c *clientConnection) drop(conn net.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// ensure establishes a connection to the endpoint unless one is active
func (c *clientConnection) ensure() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.closed() {
		return ErrTransportClosed
	}

	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	// Close may have run while dialing
	if c.closed() {
		_ = conn.Close()
		return ErrTransportClosed
	}

	c.conn = conn
	select {
	case c.restored <- struct{}{}:
	default:
	}
	return nil
}

// closed reports whether the connection or its transport was closed
func (c *clientConnection) closed() bool {
	if c.parent.stopping.Load() {
		return true
	}
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
