package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dLink/lib/queue"
	"github.com/ValentinKolb/dLink/rpc/common"
	"github.com/ValentinKolb/dLink/rpc/transport"
	"github.com/ValentinKolb/dLink/rpc/transport/base"
	"github.com/rcrowley/go-metrics"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBatchWindow is used if ClientConfig.BatchWindowMillis is not set.
	// Calls issued within one scheduler tick end up in the same batch.
	DefaultBatchWindow = 2 * time.Millisecond
	// DefaultMaxBatchSize is used if ClientConfig.MaxBatchSize is not set
	DefaultMaxBatchSize = 64

	// HeaderBatchSize carries the number of frames in a batch request
	HeaderBatchSize = "X-Dlink-Batch"
	contentType     = "application/x-dlink-frames"
)

// BatchStats is implemented by links that record the size of every flushed batch
type BatchStats interface {
	BatchSizes() metrics.Histogram
}

// NewHttpClientTransport creates the batched link. Calls are queued and flushed as a
// single POST per batch window.
func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{
		batchSizes: metrics.NewHistogram(metrics.NewUniformSample(1028)),
	}
}

// pendingCall is a queued call waiting to be flushed
type pendingCall struct {
	ctx    context.Context
	req    []byte
	respCh chan callResult
}

type callResult struct {
	data []byte
	err  error
}

type httpClientTransport struct {
	mu         sync.RWMutex
	client     *http.Client
	serverURLs []string
	headers    map[string]string
	config     common.ClientConfig
	calls      *queue.MPSC[pendingCall]
	loopDone   chan struct{}
	flushes    sync.WaitGroup
	counter    uint32
	batchSizes metrics.Histogram
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Name() string {
	return "http"
}

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Resolve each endpoint url
	serverURLs := make([]string, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		resolved, err := resolveEndpoint(endpoint)
		if err != nil {
			return err
		}
		serverURLs[i] = resolved
	}

	// Connecting twice replaces the previous batcher
	_ = t.Close()

	headers := make(map[string]string, len(config.Headers))
	for name, value := range config.Headers {
		headers[name] = value
	}

	calls := queue.NewMPSC[pendingCall]()
	loopDone := make(chan struct{})

	t.mu.Lock()
	t.client = &http.Client{
		Timeout: time.Duration(config.TimeoutSecond) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.serverURLs = serverURLs
	t.headers = headers
	t.config = config
	t.calls = calls
	t.loopDone = loopDone
	t.mu.Unlock()

	go t.batchLoop(calls, loopDone)

	Logger.Debugf("Batched link ready for %v (window %s, max batch %d)",
		serverURLs, t.batchWindow(), t.maxBatchSize())
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	t.mu.RLock()
	calls := t.calls
	t.mu.RUnlock()

	if calls == nil {
		return nil, base.ErrTransportClosed
	}

	call := &pendingCall{
		ctx:    ctx,
		req:    req,
		respCh: make(chan callResult, 1),
	}
	if !calls.Push(call) {
		return nil, base.ErrTransportClosed
	}

	select {
	case result := <-call.respCh:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *httpClientTransport) Close() error {
	t.mu.Lock()
	calls := t.calls
	loopDone := t.loopDone
	client := t.client
	t.calls = nil
	t.mu.Unlock()

	if calls == nil {
		return nil
	}

	// queued calls are still flushed before the batcher exits
	calls.Close()
	<-loopDone
	t.flushes.Wait()

	if client != nil {
		client.CloseIdleConnections()
	}
	return nil
}

// BatchSizes returns the histogram of flushed batch sizes
func (t *httpClientTransport) BatchSizes() metrics.Histogram {
	return t.batchSizes
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resolveEndpoint turns an endpoint into an absolute url. Root-relative endpoints have
// no origin outside a browser and are resolved against the local server default.
func resolveEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &common.ConfigurationError{Field: "endpoint", Reason: err.Error()}
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", &common.ConfigurationError{Field: "endpoint", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
		}
		return u.String(), nil
	}
	origin, _ := url.Parse(common.ResolveBaseURL(common.ExecServer, "", 0))
	return origin.ResolveReference(u).String(), nil
}

func (t *httpClientTransport) batchWindow() time.Duration {
	if t.config.BatchWindowMillis > 0 {
		return time.Duration(t.config.BatchWindowMillis) * time.Millisecond
	}
	return DefaultBatchWindow
}

func (t *httpClientTransport) maxBatchSize() int {
	if t.config.MaxBatchSize > 0 {
		return t.config.MaxBatchSize
	}
	return DefaultMaxBatchSize
}

// batchLoop collects queued calls. A batch is opened by the first call and flushed
// once the window has passed or the batch is full.
func (t *httpClientTransport) batchLoop(calls *queue.MPSC[pendingCall], done chan struct{}) {
	defer close(done)

	window := t.batchWindow()
	maxSize := t.maxBatchSize()

	for {
		first, ok := <-calls.Recv()
		if !ok {
			return
		}

		batch := []*pendingCall{first}
		timer := time.NewTimer(window)

	collect:
		for len(batch) < maxSize {
			select {
			case call, ok := <-calls.Recv():
				if !ok {
					break collect
				}
				batch = append(batch, call)
			case <-timer.C:
				break collect
			}
		}
		timer.Stop()

		t.flushes.Add(1)
		go func() {
			defer t.flushes.Done()
			t.flush(batch)
		}()
	}
}

// flush sends one batch as a single POST request and distributes the responses.
// The request ID of a frame is the index of the call within the batch.
func (t *httpClientTransport) flush(batch []*pendingCall) {
	// calls abandoned while waiting in the queue are not sent
	live := batch[:0]
	for _, call := range batch {
		if err := call.ctx.Err(); err != nil {
			call.respCh <- callResult{nil, err}
			continue
		}
		live = append(live, call)
	}
	if len(live) == 0 {
		return
	}
	t.batchSizes.Update(int64(len(live)))

	var body bytes.Buffer
	for i, call := range live {
		if err := base.WriteFrame(&body, uint64(i), call.req); err != nil {
			live[i].respCh <- callResult{nil, err}
			live[i] = nil
		}
	}

	responses, err := t.post(body.Bytes(), len(live))
	if err != nil {
		for _, call := range live {
			if call != nil {
				call.respCh <- callResult{nil, err}
			}
		}
		return
	}

	for i, call := range live {
		if call == nil {
			continue
		}
		if data, ok := responses[uint64(i)]; ok {
			call.respCh <- callResult{data, nil}
		} else {
			call.respCh <- callResult{nil, fmt.Errorf("no response for call %d of batch", i)}
		}
	}
}

// post sends the encoded batch with retries and returns the response frames by request ID
func (t *httpClientTransport) post(body []byte, size int) (map[uint64][]byte, error) {
	t.mu.RLock()
	client := t.client
	serverURLs := t.serverURLs
	headers := t.headers
	retries := t.config.RetryCount
	t.mu.RUnlock()

	if client == nil {
		return nil, base.ErrTransportClosed
	}

	// We always try at least once, and up to RetryCount times
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	backoffMs := 50

	for i := 0; i < retries; i++ {
		// Select the next server via round-robin
		idx := atomic.AddUint32(&t.counter, 1) % uint32(len(serverURLs))

		responses, retryable, err := t.postOnce(client, serverURLs[idx], headers, body, size)
		if err == nil {
			return responses, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		Logger.Debugf("Batch attempt %d/%d failed: %v", i+1, retries, err)

		if i < retries-1 {
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}
	return nil, lastErr
}

// postOnce performs a single POST. Network errors and 5xx answers are retryable.
func (t *httpClientTransport) postOnce(client *http.Client, serverURL string, headers map[string]string, body []byte, size int) (map[uint64][]byte, bool, error) {
	httpRequest, err := http.NewRequest(http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}

	// forwarded headers first, the framing headers are owned by the link
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}
	httpRequest.Header.Set("Content-Type", contentType)
	httpRequest.Header.Set(HeaderBatchSize, strconv.Itoa(size))

	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return nil, true, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	// Check if the response status code is OK
	if httpResponse.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 1024))
		return nil, httpResponse.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("http error: %s: %s", httpResponse.Status, bytes.TrimSpace(msg))
	}

	responses := make(map[uint64][]byte, size)
	for {
		requestID, data, err := base.ReadFrame(httpResponse.Body, nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, true, fmt.Errorf("failed to read batch response: %w", err)
		}
		responses[requestID] = data
	}
	return responses, false, nil
}
