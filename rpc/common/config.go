package common

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Well-known values
// --------------------------------------------------------------------------

const (
	// DefaultWSURL is used by the socket link if no socket url is configured
	DefaultWSURL = "ws://localhost:3001"
	// RPCEndpointSuffix is appended to the base url for the batched link
	RPCEndpointSuffix = "/api/rpc"
	// DefaultPort is used for server-side base urls if no public host is configured
	DefaultPort = 3000
)

// --------------------------------------------------------------------------
// Transport Strategy
// --------------------------------------------------------------------------

// Strategy identifies the kind of link behind a transport handle
type Strategy uint8

const (
	StrategyNone Strategy = iota
	Batched               // connectionless, calls of one batch window share one HTTP request
	Socket                // one persistent duplex connection shared by all calls
)

// String returns the string representation of a Strategy.
func (s Strategy) String() string {
	switch s {
	case Batched:
		return "batched"
	case Socket:
		return "socket"
	default:
		return "none"
	}
}

// --------------------------------------------------------------------------
// Base URL handling
// --------------------------------------------------------------------------

// ResolveBaseURL derives the base url from the execution environment.
// Browser clients use a root-relative path. Server-side renders use the public host if
// one is provided and fall back to localhost on the given port (DefaultPort if <= 0).
func ResolveBaseURL(kind ExecutionKind, publicHost string, port int) string {
	if kind == ExecBrowser {
		return "/"
	}
	if host := strings.TrimSpace(publicHost); host != "" {
		if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
			return strings.TrimSuffix(host, "/")
		}
		return "http://" + strings.TrimSuffix(host, "/")
	}
	if port <= 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// ValidateBaseURL checks that base is a non-empty absolute (scheme and host) or
// root-relative url. Violations are reported as *ConfigurationError.
func ValidateBaseURL(base string) error {
	if strings.TrimSpace(base) == "" {
		return &ConfigurationError{Field: "base url", Reason: "must not be empty"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return &ConfigurationError{Field: "base url", Reason: err.Error()}
	}
	if u.IsAbs() {
		if u.Host == "" {
			return &ConfigurationError{Field: "base url", Reason: fmt.Sprintf("%q has no host", base)}
		}
		return nil
	}
	if !strings.HasPrefix(u.Path, "/") {
		return &ConfigurationError{Field: "base url", Reason: fmt.Sprintf("%q is neither absolute nor root-relative", base)}
	}
	return nil
}

// JoinEndpoint appends the fixed RPC endpoint suffix to a (validated) base url
func JoinEndpoint(base string) string {
	return strings.TrimSuffix(base, "/") + RPCEndpointSuffix
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes (ignored by the batched link)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds options applied to tcp connections of the socket link
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ClientConfig configures a single link. The transport selector fills Endpoints and
// Headers, everything else is tuning passed through by the caller.
type ClientConfig struct {
	Endpoints              []string
	Headers                map[string]string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int

	// Batched link only
	BatchWindowMillis int
	MaxBatchSize      int

	SocketConf
	TCPConf
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))
	addField("Batch Window", fmt.Sprintf("%d ms", c.BatchWindowMillis))
	addField("Max Batch Size", strconv.Itoa(c.MaxBatchSize))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	// Forwarded headers, values are not printed
	if len(c.Headers) > 0 {
		addSection("Headers")
		names := make([]string, 0, len(c.Headers))
		for name := range c.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			addField(name, "<set>")
		}
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for the RPC server
type ServerConfig struct {
	// Address of the batched HTTP endpoint (e.g. ":3000")
	HTTPEndpoint string
	// Socket url the server listens on (ws://host:port, tcp://host:port or unix:///path)
	SocketEndpoint string

	TimeoutSecond     int64
	MaxWorkersPerConn int
	BufferSize        int

	// Secret used to verify session tokens, sessions are disabled if empty
	SessionSecret string
	// Origins (scheme://host[:port]) allowed to open browser sockets besides the
	// server's own host. "*" allows every origin
	AllowedOrigins []string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("HTTP Endpoint", c.HTTPEndpoint+RPCEndpointSuffix)
	addField("Socket Endpoint", c.SocketEndpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.MaxWorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d KB", c.BufferSize/1024))

	addSection("Sessions")
	addField("Enabled", fmt.Sprintf("%t", c.SessionSecret != ""))
	addField("Allowed Origins", strings.Join(c.AllowedOrigins, ", "))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
