// Package middleware provides Echo middleware for logging, metrics and CORS.
package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"edge-gateway/internal/model"
)

// RequestID assigns each request an id, reusing an inbound X-Request-Id, and
// stores it in the echo context. Echo also sets it on the response header;
// the proxy handler drops it again from relayed responses.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set(model.ContextKeyRequestID, id)
		},
	})
}

// RequestLogger returns an Echo middleware that logs each request with slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()
			target, _ := c.Get(model.ContextKeyTarget).(string)
			requestID, _ := c.Get(model.ContextKeyRequestID).(string)

			logger.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"target", target,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestID,
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
