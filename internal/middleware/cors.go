package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/config"
)

// CORS returns an Echo middleware that decorates every response with
// cross-origin headers. Only genuine preflights (OPTIONS carrying Origin and
// Access-Control-Request-Method) are answered here with 204; every other
// request, OPTIONS included, continues to the next handler.
//
// Headers are set before the handler runs, so a backend that sends its own
// Access-Control-* headers overrides the gateway's.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()

			origin := req.Header.Get(echo.HeaderOrigin)
			allowed := anyOrigin || (origin != "" && slices.Contains(cfg.AllowOrigins, origin))
			if !allowed {
				return next(c)
			}

			if anyOrigin {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
				h.Add(echo.HeaderVary, echo.HeaderOrigin)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)

			preflight := req.Method == http.MethodOptions &&
				origin != "" &&
				req.Header.Get(echo.HeaderAccessControlRequestMethod) != ""
			if !preflight {
				return next(c)
			}

			if cfg.MaxAgeSeconds > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(cfg.MaxAgeSeconds))
			}
			return c.NoContent(http.StatusNoContent)
		}
	}
}
