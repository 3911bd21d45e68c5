package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/base"
	"golang.org/x/sync/errgroup"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

var Logger = base.Logger

// maxBatchBodySize limits the body of a single batch request
const maxBatchBodySize = 4 * base.MaxFrameSize

// NewHttpServerTransport creates the server side of the batched link. It serves
// POST <common.RPCEndpointSuffix> on ServerConfig.HTTPEndpoint. routes are mounted on
// the same server (e.g. "GET /metrics").
func NewHttpServerTransport(routes map[string]http.Handler) transport.IRPCServerTransport {
	return &httpServerTransport{routes: routes}
}

type httpServerTransport struct {
	handler  transport.ServerHandleFunc
	config   common.ServerConfig
	routes   map[string]http.Handler
	serverMu sync.Mutex
	server   *http.Server
	addr     net.Addr
	closing  bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	listener, err := net.Listen("tcp", config.HTTPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.HTTPEndpoint, err)
	}

	server := &http.Server{
		Handler:           t.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.serverMu.Lock()
	if t.closing {
		t.serverMu.Unlock()
		_ = listener.Close()
		return nil
	}
	t.server = server
	t.addr = listener.Addr()
	t.serverMu.Unlock()

	Logger.Infof("Starting HTTP server on %s", listener.Addr())

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Close() error {
	t.serverMu.Lock()
	defer t.serverMu.Unlock()

	t.closing = true
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}

// Addr returns the address the transport listens on, or nil before Listen
func (t *httpServerTransport) Addr() net.Addr {
	t.serverMu.Lock()
	defer t.serverMu.Unlock()
	return t.addr
}

// Mux returns the handler of the transport, it can be mounted into httptest servers
func (t *httpServerTransport) Mux() http.Handler {
	mux := http.NewServeMux()

	pattern := "POST " + common.RPCEndpointSuffix
	if strings.EqualFold(t.config.LogLevel, "debug") {
		mux.HandleFunc(pattern, loggerMiddleware(t.handleBatch))
	} else {
		mux.HandleFunc(pattern, t.handleBatch)
	}

	for route, handler := range t.routes {
		mux.Handle(route, handler)
	}
	return mux
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleBatch runs every frame of a batch request through the handler and answers with
// one frame per call, using the request ID of the call
func (t *httpServerTransport) handleBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// Headers of the batch request apply to every call in it
	ctx := transport.WithHeaders(r.Context(), common.ServerContextFromRequest(r).Headers())

	type frame struct {
		requestID uint64
		data      []byte
	}

	body := http.MaxBytesReader(w, r.Body, maxBatchBodySize)
	var frames []frame
	for {
		requestID, data, err := base.ReadFrame(body, nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("Malformed batch: %v", err), http.StatusBadRequest)
			return
		}
		frames = append(frames, frame{requestID, data})
	}

	// Calls of one batch are independent and run concurrently
	responses := make([][]byte, len(frames))
	var g errgroup.Group
	if t.config.MaxWorkersPerConn > 0 {
		g.SetLimit(t.config.MaxWorkersPerConn)
	}
	for i, f := range frames {
		g.Go(func() error {
			responses[i] = t.handler(ctx, f.data)
			return nil
		})
	}
	_ = g.Wait()

	var out bytes.Buffer
	for i, f := range frames {
		if err := base.WriteFrame(&out, f.requestID, responses[i]); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(out.Bytes()); err != nil {
		Logger.Errorf("Failed to write batch response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s (%s calls) => %d took %s",
			r.Method, r.URL.Path, r.Header.Get(HeaderBatchSize), rw.statusCode, time.Since(start))
	}
}
