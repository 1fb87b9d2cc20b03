// Package service implements the core forwarding logic of the gateway.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"edge-gateway/internal/client"
	"edge-gateway/internal/config"
	"edge-gateway/internal/model"
	"edge-gateway/internal/route"
)

// Error classes surfaced to the handler. Each wraps the underlying cause.
var (
	// ErrUnknownTarget means a decision named a target with no configured backend.
	ErrUnknownTarget = errors.New("no backend configured for target")
	// ErrBuildRequest means the outbound request could not be constructed.
	ErrBuildRequest = errors.New("build upstream request")
	// ErrUpstream means the backend could not be reached or did not answer.
	ErrUpstream = errors.New("upstream unreachable")
	// ErrReadResponse means the backend answered but the body could not be read.
	ErrReadResponse = errors.New("read upstream response")
	// ErrResponseAssembly means the upstream header set cannot be relayed.
	ErrResponseAssembly = errors.New("assemble response")
)

// Backends maps each forwardable target to its base URL.
type Backends map[route.Target]string

// NewBackends builds the backend table from configuration. The web target is
// present only when a web URL is configured.
func NewBackends(cfg *config.Config) Backends {
	b := Backends{
		route.TargetAPI: cfg.Upstream.APIURL,
		route.TargetAI:  cfg.Upstream.AIURL,
	}
	if cfg.Upstream.WebURL != "" {
		b[route.TargetWeb] = cfg.Upstream.WebURL
	}
	return b
}

// NewRouter returns the router whose fallback matches the configured backends.
func NewRouter(b Backends) *route.Router {
	if _, ok := b[route.TargetWeb]; ok {
		return route.New(route.TargetWeb)
	}
	return route.New(route.TargetAPI)
}

// ProxyService performs exactly one upstream round trip per request.
type ProxyService struct {
	client   *client.UpstreamClient
	backends Backends
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, b Backends, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:   c,
		backends: b,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Forward relays pr to the backend chosen by d and returns the buffered
// upstream response. Method, headers (Host included) and body are sent
// verbatim; the query string is reattached byte-for-byte. No retries.
func (s *ProxyService) Forward(d route.Decision, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	base, ok := s.backends[d.Target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, d.Target)
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, BuildUpstreamURL(base, d.Path), bytes.NewReader(pr.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildRequest, err)
	}
	// Set after parsing so bytes such as '#' stay in the query.
	req.URL.RawQuery = pr.RawQuery
	req.Header = copyHeader(pr.Header)
	req.Host = pr.Host
	if _, ok := req.Header["User-Agent"]; !ok {
		// An empty value stops net/http from adding its default User-Agent.
		req.Header["User-Agent"] = []string{""}
	}

	s.logger.Debug("forwarding request",
		"target", d.Target,
		"method", pr.Method,
		"path", d.Path,
	)

	resp, err := s.client.Do(string(d.Target), req)
	if err != nil {
		var readErr *client.ReadError
		if errors.As(err, &readErr) {
			return nil, fmt.Errorf("%w: %w", ErrReadResponse, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if err := validateHeader(resp.Header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseAssembly, err)
	}

	return resp, nil
}

// BuildUpstreamURL concatenates base URL and path. The raw query is attached
// to the parsed request URL by the caller, never through this string.
func BuildUpstreamURL(base, path string) string {
	if path == "" {
		path = "/"
	}
	return base + path
}

// copyHeader returns a deep copy so the inbound header map is never mutated.
func copyHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
	return dst
}

// validateHeader rejects header names or values that cannot be written back
// to the caller.
func validateHeader(h http.Header) error {
	for k, vv := range h {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("invalid header name %q", k)
		}
		for _, v := range vv {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("invalid value for header %q", k)
			}
		}
	}
	return nil
}
