// Package client provides the shared upstream HTTP client used to reach backends.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/model"
)

// ErrBodyTooLarge is returned when an upstream body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("upstream response body exceeds limit")

// ReadError reports that the upstream answered but its body could not be read
// in full (connection reset mid-body, malformed chunking, size cap).
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read upstream body: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// UpstreamClient sends requests to backends over one pooled transport shared
// by all in-flight requests.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// A zero upstream timeout leaves requests bounded only by the caller's context.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Bodies are relayed as received; never negotiate or decode gzip here.
		DisableCompression: true,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are the caller's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
		maxBody: cfg.Upstream.ResponseMaxBytes,
	}
}

// Do executes req against the backend named target and buffers the whole
// response body. Transport failures are returned as-is; body failures are
// wrapped in *ReadError.
func (c *UpstreamClient) Do(target string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"target", target,
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	method := metrics.NormalizeMethod(req.Method)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(target, method, start, 0)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	if err != nil {
		c.observe(target, method, start, 0)
		return nil, &ReadError{Err: err}
	}

	c.observe(target, method, start, resp.StatusCode)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// readBody reads r to EOF, honoring the optional size cap.
func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.maxBody)
	}
	return body, nil
}

// observe records latency and outcome; status 0 means no usable response.
func (c *UpstreamClient) observe(target, method string, start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(target, method).Observe(time.Since(start).Seconds())
	if status == 0 {
		c.metrics.UpstreamFailures.WithLabelValues(target, method).Inc()
		return
	}
	c.metrics.UpstreamResponses.WithLabelValues(target, method, strconv.Itoa(status)).Inc()
}
