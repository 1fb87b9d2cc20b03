package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/model"
	"edge-gateway/internal/route"
	"edge-gateway/internal/service"
)

// ProxyHandler is the gateway's single entry point: every request is routed,
// then either answered locally (health) or forwarded upstream.
type ProxyHandler struct {
	router  *route.Router
	service *service.ProxyService
	health  *HealthHandler
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(r *route.Router, svc *service.ProxyService, health *HealthHandler, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		router:  r,
		service: svc,
		health:  health,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle routes the request and relays the upstream response verbatim.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	path := req.URL.EscapedPath()

	d := h.router.Resolve(path)
	c.Set(model.ContextKeyTarget, string(d.Target))

	if d.Target == route.TargetHealth {
		return h.health.Health(c)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		h.logger.Warn("reading request body", "err", err, "path", path)
		return c.String(http.StatusBadRequest, "Bad Request: "+err.Error())
	}

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Host:     req.Host,
		Path:     path,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     body,
	}

	resp, err := h.service.Forward(d, pr)
	if err != nil {
		return h.mapError(c, d, err)
	}

	// Upstream headers replace anything already set under the same name.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	// A nil entry stops net/http from synthesizing headers the backend did not send.
	for _, key := range []string{echo.HeaderContentType, "Date"} {
		if _, ok := resp.Header[key]; !ok {
			dst[key] = nil
		}
	}
	// The request id stays in logs; only CORS decorates relayed responses.
	if _, ok := resp.Header[echo.HeaderXRequestID]; !ok {
		delete(dst, echo.HeaderXRequestID)
	}
	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already out, so a failed write can only be logged.
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"path", path,
			"target", d.Target,
		)
	}

	return nil
}

// mapError converts a forwarding failure into a plain-text gateway response:
// 500 when the gateway could not build the request or the response, 502 for
// everything that went wrong on the way to or from the backend.
func (h *ProxyHandler) mapError(c echo.Context, d route.Decision, err error) error {
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	h.logger.Log(c.Request().Context(), level, "proxy error",
		"err", err,
		"path", c.Request().URL.Path,
		"target", d.Target,
		"rule", d.Rule,
	)

	switch {
	case errors.Is(err, service.ErrBuildRequest),
		errors.Is(err, service.ErrResponseAssembly),
		errors.Is(err, service.ErrUnknownTarget):
		return c.String(http.StatusInternalServerError, "Internal Server Error: "+err.Error())
	default:
		return c.String(http.StatusBadGateway, errorPrefix(d.Target)+err.Error())
	}
}

// errorPrefix labels 502 bodies by backend so callers can tell an AI outage
// from an API or web outage.
func errorPrefix(t route.Target) string {
	if t == route.TargetAI {
		return "AI Proxy Error: "
	}
	return "Proxy Error: "
}
