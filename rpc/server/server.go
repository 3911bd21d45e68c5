package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/serializer"
	"github.com/ValentinKolb/dLink/rpc/session"
	"github.com/ValentinKolb/dLink/rpc/transport"
	httptransport "github.com/ValentinKolb/dLink/rpc/transport/http"
	"github.com/ValentinKolb/dLink/rpc/transport/socket"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"net"
	"net/http"
	"sync"
	"time"
)

var Logger = logger.GetLogger("rpc")

// ProcedureFunc implements a remote procedure. input and output are encoded by the
// application, the RPC layer does not inspect them. ctx carries the request headers
// (transport.HeadersFromContext) and the session of the caller (session.FromContext).
type ProcedureFunc func(ctx context.Context, input []byte) (output []byte, err error)

type procedure struct {
	kind common.MessageType
	fn   ProcedureFunc
}

// Server dispatches calls of all its transports to the registered procedures
type Server struct {
	config     common.ServerConfig
	serializer serializer.IRPCSerializer
	procedures *xsync.MapOf[string, procedure]
	transports []transport.IRPCServerTransport
	sessions   *session.Manager
	metrics    *metrics.Set

	done      chan struct{}
	closeOnce sync.Once
}

// NewRPCServer creates a new RPC server with the transports of the config: the
// batched HTTP endpoint (config.HTTPEndpoint, also serving GET /metrics) and the
// socket endpoint (config.SocketEndpoint). Empty endpoints are not served.
//
// Usage:
//
//	s, err := server.NewRPCServer(*config, serializer.NewJSONSerializer())
//	if err != nil {
//		return err
//	}
//	_ = s.Query("echo", func(ctx context.Context, in []byte) ([]byte, error) { return in, nil })
//
//	if err := s.Serve(); err != nil {
//		return err
//	}
func NewRPCServer(config common.ServerConfig, serializer serializer.IRPCSerializer) (*Server, error) {
	s, err := NewRPCServerWith(config, serializer)
	if err != nil {
		return nil, err
	}

	if config.HTTPEndpoint != "" {
		s.transports = append(s.transports, httptransport.NewHttpServerTransport(map[string]http.Handler{
			"GET /metrics": s.MetricsHandler(),
		}))
	}
	if config.SocketEndpoint != "" {
		t, err := socket.NewServerTransport(config.SocketEndpoint, config.BufferSize, config.MaxWorkersPerConn)
		if err != nil {
			return nil, err
		}
		s.transports = append(s.transports, t)
	}
	if len(s.transports) == 0 {
		return nil, fmt.Errorf("neither an http nor a socket endpoint is configured")
	}
	return s, nil
}

// NewRPCServerWith creates a new RPC server serving the given transports
func NewRPCServerWith(config common.ServerConfig, serializer serializer.IRPCSerializer, transports ...transport.IRPCServerTransport) (*Server, error) {
	if serializer == nil {
		return nil, fmt.Errorf("no serializer provided")
	}

	s := &Server{
		config:     config,
		serializer: serializer,
		procedures: xsync.NewMapOf[string, procedure](),
		transports: transports,
		metrics:    metrics.NewSet(),
		done:       make(chan struct{}),
	}

	if config.SessionSecret != "" {
		sessions, err := session.NewManager(config.SessionSecret, 0)
		if err != nil {
			return nil, err
		}
		s.sessions = sessions
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())
	return s, nil
}

// --------------------------------------------------------------------------
// Procedure registry
// --------------------------------------------------------------------------

// Register registers a procedure. kind is common.MsgTQuery or common.MsgTMutation,
// names must be unique.
func (s *Server) Register(name string, kind common.MessageType, fn ProcedureFunc) error {
	if name == "" {
		return fmt.Errorf("procedure name must not be empty")
	}
	if kind != common.MsgTQuery && kind != common.MsgTMutation {
		return fmt.Errorf("procedure %s: invalid kind %s", name, kind)
	}
	if fn == nil {
		return fmt.Errorf("procedure %s: nil function", name)
	}
	if _, loaded := s.procedures.LoadOrStore(name, procedure{kind: kind, fn: fn}); loaded {
		return fmt.Errorf("procedure %s already registered", name)
	}
	Logger.Debugf("Registered %s %s", kind, name)
	return nil
}

// Query registers a procedure without side effects
func (s *Server) Query(name string, fn ProcedureFunc) error {
	return s.Register(name, common.MsgTQuery, fn)
}

// Mutation registers a procedure with side effects
func (s *Server) Mutation(name string, fn ProcedureFunc) error {
	return s.Register(name, common.MsgTMutation, fn)
}

// Sessions returns the session manager, nil if sessions are disabled
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

// Handle processes one encoded request and returns the encoded response. It is the
// handler registered on every transport.
func (s *Server) Handle(ctx context.Context, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Decode the request
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse("", fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		respMsg = s.dispatch(ctx, &msg)
	}

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(msg.Procedure,
			fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// dispatch runs the procedure of a decoded request
func (s *Server) dispatch(ctx context.Context, req *common.Message) (resp *common.Message) {
	if !req.IsRequest() {
		return common.NewErrorResponse(req.Procedure, fmt.Sprintf("unsupported message type: %s", req.MsgType))
	}

	proc, ok := s.procedures.Load(req.Procedure)
	if !ok {
		s.metrics.GetOrCreateCounter(`dlink_rpc_calls_total{procedure="unknown",status="not_found"}`).Inc()
		return common.NewErrorResponse(req.Procedure, fmt.Sprintf("procedure not found: %s", req.Procedure))
	}
	if proc.kind != req.MsgType {
		return common.NewErrorResponse(req.Procedure,
			fmt.Sprintf("procedure %s is a %s, not a %s", req.Procedure, proc.kind, req.MsgType))
	}

	if s.sessions != nil {
		ctx = s.sessions.Provide(ctx)
	}

	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Procedure %s panicked: %v", req.Procedure, r)
			status = "error"
			resp = common.NewErrorResponse(req.Procedure, "internal error")
		}
		s.metrics.GetOrCreateCounter(fmt.Sprintf(`dlink_rpc_calls_total{procedure=%q,status=%q}`, req.Procedure, status)).Inc()
		s.metrics.GetOrCreateHistogram(fmt.Sprintf(`dlink_rpc_call_duration_seconds{procedure=%q}`, req.Procedure)).UpdateDuration(start)
	}()

	output, err := proc.fn(ctx, req.Input)
	if err != nil {
		status = "error"
		return common.NewErrorResponse(req.Procedure, err.Error())
	}
	return common.NewResultResponse(req.Procedure, output, req.Meta)
}

// MetricsHandler serves the call metrics and the process metrics in Prometheus text format
func (s *Server) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Serve starts all transports and blocks until Close is called or a transport fails.
// A failing transport stops the others.
func (s *Server) Serve() error {
	if len(s.transports) == 0 {
		return fmt.Errorf("no transports configured")
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, t := range s.transports {
		t.RegisterHandler(s.Handle)
		g.Go(func() error {
			return t.Listen(s.config)
		})
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			Logger.Warningf("A transport failed, stopping the server")
			_ = s.Close()
		case <-s.done:
		case <-stopped:
		}
	}()

	err := g.Wait()
	close(stopped)
	return err
}

// Addrs returns the listen addresses of the running transports
func (s *Server) Addrs() []net.Addr {
	var addrs []net.Addr
	for _, t := range s.transports {
		if a, ok := t.(interface{ Addr() net.Addr }); ok && a.Addr() != nil {
			addrs = append(addrs, a.Addr())
		}
	}
	return addrs
}

// Close stops all transports
func (s *Server) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		close(s.done)
		for _, t := range s.transports {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		Logger.Infof("RPC Server stopped")
	})
	return firstErr
}
