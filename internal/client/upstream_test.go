package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			IdleConnections: 10,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpstreamClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := NewUpstreamClient(testConfig(), discardLogger(), m)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/test", http.NoBody)
	resp, err := c.Do("api", req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", resp.Body, `{"status":"ok"}`)
	}
	if got := resp.Header.Values("X-Multi"); len(got) != 2 {
		t.Errorf("X-Multi = %v, want two values", got)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "edge_gateway_upstream_responses_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["target"] == "api" && labels["status_code"] == "201" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected edge_gateway_upstream_responses_total with target=api, status_code=201")
	}
}

func TestUpstreamClient_Do_PassesEncodedBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ae := r.Header.Get("Accept-Encoding"); ae != "" {
			t.Errorf("Accept-Encoding = %q, want none added by the client", ae)
		}
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not-really-gzip"))
	}))
	defer srv.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)

	resp, err := c.Do("api", req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Body) != "not-really-gzip" {
		t.Errorf("body = %q, want raw upstream bytes", resp.Body)
	}
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", resp.Header.Get("Content-Encoding"))
	}
}

func TestUpstreamClient_Do_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/start", http.NoBody)

	resp, err := c.Do("web", req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if resp.Header.Get("Location") != "/elsewhere" {
		t.Errorf("Location = %q, want %q", resp.Header.Get("Location"), "/elsewhere")
	}
}

func TestUpstreamClient_Do_Unreachable(t *testing.T) {
	m := metrics.New()
	c := NewUpstreamClient(testConfig(), discardLogger(), m)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://127.0.0.1:1/nonexistent", http.NoBody)
	_, err := c.Do("ai", req)
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
	var readErr *ReadError
	if errors.As(err, &readErr) {
		t.Errorf("transport failure should not be a ReadError: %v", err)
	}

	families, _ := m.Registry.Gather()
	for _, f := range families {
		if f.GetName() == "edge_gateway_upstream_failures_total" {
			return
		}
	}
	t.Error("expected edge_gateway_upstream_failures_total to be recorded")
}

func TestUpstreamClient_Do_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Upstream.ResponseMaxBytes = 16
	c := NewUpstreamClient(cfg, discardLogger(), nil)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	_, err := c.Do("api", req)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("Do() error = %v, want ErrBodyTooLarge", err)
	}
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Errorf("size cap error should be a ReadError: %v", err)
	}
}

func TestUpstreamClient_Do_BodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Upstream.ResponseMaxBytes = 16
	c := NewUpstreamClient(cfg, discardLogger(), nil)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	resp, err := c.Do("api", req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(resp.Body) != 16 {
		t.Errorf("len(body) = %d, want 16", len(resp.Body))
	}
}

func TestUpstreamClient_Do_CanceledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewUpstreamClient(testConfig(), discardLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/slow", http.NoBody)
	_, err := c.Do("api", req)
	if err == nil {
		t.Fatal("Do() expected error for expired context, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded in chain", err)
	}
}
