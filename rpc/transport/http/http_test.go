package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/base"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestServer starts a batch server with the given handler and counts the batch requests
func newTestServer(t *testing.T, handler transport.ServerHandleFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	srv := NewHttpServerTransport(nil).(*httpServerTransport)
	srv.RegisterHandler(handler)
	mux := srv.Mux()

	var posts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &posts
}

func echoHandler(_ context.Context, req []byte) []byte {
	return append([]byte("echo:"), req...)
}

func connect(t *testing.T, config common.ClientConfig) transport.IRPCClientTransport {
	t.Helper()
	link := NewHttpClientTransport()
	if err := link.Connect(config); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = link.Close() })
	return link
}

func TestBatchCoalescesConcurrentCalls(t *testing.T) {
	ts, posts := newTestServer(t, echoHandler)
	link := connect(t, common.ClientConfig{
		Endpoints:         []string{common.JoinEndpoint(ts.URL)},
		TimeoutSecond:     5,
		BatchWindowMillis: 100,
	})

	const calls = 10
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := fmt.Sprintf("call-%d", i)
			resp, err := link.Send(context.Background(), []byte(req))
			if err != nil {
				errs <- err
				return
			}
			if string(resp) != "echo:"+req {
				errs <- fmt.Errorf("expected %q, got %q", "echo:"+req, resp)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := posts.Load(); n != 1 {
		t.Errorf("Expected 1 batch request, got %d", n)
	}

	if stats, ok := link.(BatchStats); !ok {
		t.Error("batched link should record batch sizes")
	} else if got := stats.BatchSizes().Max(); got != calls {
		t.Errorf("Expected max batch size %d, got %d", calls, got)
	}
}

func TestMaxBatchSizeSplitsBatches(t *testing.T) {
	ts, posts := newTestServer(t, echoHandler)
	link := connect(t, common.ClientConfig{
		Endpoints:         []string{common.JoinEndpoint(ts.URL)},
		TimeoutSecond:     5,
		BatchWindowMillis: 200,
		MaxBatchSize:      2,
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := link.Send(context.Background(), []byte("x")); err != nil {
				t.Errorf("Send failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := posts.Load(); n < 2 {
		t.Errorf("Expected at least 2 batch requests, got %d", n)
	}
}

func TestHeadersForwarded(t *testing.T) {
	ts, _ := newTestServer(t, func(ctx context.Context, req []byte) []byte {
		return []byte(transport.Header(ctx, string(req)))
	})
	link := connect(t, common.ClientConfig{
		Endpoints:     []string{common.JoinEndpoint(ts.URL)},
		TimeoutSecond: 5,
		Headers: map[string]string{
			"authorization": "Bearer X",
			"cookie":        "session-token=abc",
		},
	})

	tests := map[string]string{
		"authorization": "Bearer X",
		"cookie":        "session-token=abc",
		"x-missing":     "",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := link.Send(context.Background(), []byte(name))
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if string(resp) != want {
				t.Errorf("Expected %q, got %q", want, resp)
			}
		})
	}
}

func TestHTTPErrorFailsWholeBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	link := connect(t, common.ClientConfig{
		Endpoints:         []string{common.JoinEndpoint(ts.URL)},
		TimeoutSecond:     5,
		RetryCount:        3,
		BatchWindowMillis: 50,
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := link.Send(context.Background(), []byte("x"))
			if err == nil || !strings.Contains(err.Error(), "403") {
				t.Errorf("Expected http 403 error, got %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	link := connect(t, common.ClientConfig{
		Endpoints:     []string{common.JoinEndpoint(url)},
		TimeoutSecond: 1,
	})
	if _, err := link.Send(context.Background(), []byte("x")); err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestCancelledCall(t *testing.T) {
	ts, _ := newTestServer(t, func(ctx context.Context, req []byte) []byte {
		time.Sleep(200 * time.Millisecond)
		return req
	})
	link := connect(t, common.ClientConfig{
		Endpoints:     []string{common.JoinEndpoint(ts.URL)},
		TimeoutSecond: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := link.Send(ctx, []byte("x")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	ts, _ := newTestServer(t, echoHandler)
	link := NewHttpClientTransport()
	if _, err := link.Send(context.Background(), []byte("x")); !errors.Is(err, base.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed before Connect, got %v", err)
	}

	if err := link.Connect(common.ClientConfig{Endpoints: []string{common.JoinEndpoint(ts.URL)}}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := link.Send(context.Background(), []byte("x")); !errors.Is(err, base.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed, got %v", err)
	}
	// closing twice is fine
	if err := link.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestConnectValidation(t *testing.T) {
	link := NewHttpClientTransport()
	if err := link.Connect(common.ClientConfig{}); err == nil {
		t.Error("Expected error without endpoints")
	}

	var cfgErr *common.ConfigurationError
	err := link.Connect(common.ClientConfig{Endpoints: []string{"ftp://example.com/api/rpc"}})
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError, got %v", err)
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://example.com/api/rpc", "http://example.com/api/rpc"},
		{"https://example.com/api/rpc", "https://example.com/api/rpc"},
		{"/api/rpc", "http://localhost:3000/api/rpc"},
	}
	for _, tt := range tests {
		got, err := resolveEndpoint(tt.in)
		if err != nil {
			t.Errorf("resolveEndpoint(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMalformedBatch(t *testing.T) {
	ts, _ := newTestServer(t, echoHandler)

	// a header announcing more payload than sent
	var body bytes.Buffer
	if err := base.WriteFrame(&body, 1, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	truncated := body.Bytes()[:body.Len()-2]

	resp, err := http.Post(common.JoinEndpoint(ts.URL), contentType, bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestExtraRoutes(t *testing.T) {
	srv := NewHttpServerTransport(map[string]http.Handler{
		"GET /metrics": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
	}).(*httpServerTransport)
	srv.RegisterHandler(echoHandler)

	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("Expected extra route to be served, got %q", rec.Body.String())
	}
}
