package handler

import (
	"github.com/labstack/echo/v4"

	"edge-gateway/internal/metrics"
)

// RegisterRoutes sends every path to the proxy handler; the gateway's own
// router decides between health and forwarding. Any covers the standard
// methods; the RouteNotFound catch-all takes every other method, so extension
// methods are forwarded instead of getting a 405.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler) {
	e.Any("/", proxy.Handle)
	e.Any("/*", proxy.Handle)
	e.RouteNotFound("/*", proxy.Handle)
}

// AdminEcho is the echo instance behind the admin listener.
type AdminEcho struct {
	*echo.Echo
}

// RegisterAdminRoutes wires metrics and status onto the admin listener.
func RegisterAdminRoutes(admin AdminEcho, m *metrics.Metrics, health *HealthHandler, metricsPath string) {
	admin.GET(metricsPath, echo.WrapHandler(m.Handler()))
	admin.GET("/status", health.Status)
}
