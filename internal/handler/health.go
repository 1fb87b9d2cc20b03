package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/route"
	"edge-gateway/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthBody is the fixed liveness response. It says nothing about backends.
const HealthBody = "Edge Gateway Operational"

// HealthHandler serves the liveness endpoint and the admin status page.
type HealthHandler struct {
	backends service.Backends
	router   *route.Router
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(b service.Backends, r *route.Router, v Version) *HealthHandler {
	return &HealthHandler{backends: b, router: r, version: v}
}

// Health answers liveness probes without contacting any backend.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, HealthBody)
}

// Status reports the build version and the configured routing on the admin listener.
func (h *HealthHandler) Status(c echo.Context) error {
	backends := make(map[string]string, len(h.backends))
	for target, base := range h.backends {
		backends[string(target)] = base
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  string(h.version),
		"backends": backends,
		"fallback": string(h.router.Fallback()),
	})
}
