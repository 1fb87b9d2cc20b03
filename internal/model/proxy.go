// Package model defines the request-scoped types passed between the gateway layers.
package model

import (
	"context"
	"net/http"
)

// ProxyRequest is an inbound request about to be forwarded upstream.
// Body is fully buffered; RawQuery is kept exactly as received, without the
// leading '?'.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ProxyResponse is a fully buffered upstream response relayed to the caller.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// echo.Context keys shared between the proxy handler and middleware.
const (
	// ContextKeyTarget holds the routed target name for logging and metrics.
	ContextKeyTarget = "edge_gateway.target"
	// ContextKeyRequestID holds the request id assigned by the RequestID middleware.
	ContextKeyRequestID = "edge_gateway.request_id"
)
