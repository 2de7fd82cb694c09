// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/metrics"
)

// Options carries the middleware that routes share.  Nil middleware is
// skipped.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc // on queue joins and claims
	Cache     echo.MiddlewareFunc // on public event reads
	Metrics   bool
}

// Register mounts every route group on e.
func Register(e *echo.Echo, h *handler.Handler, opts Options) {
	RegisterRoutes(e, opts.Metrics)
	RegisterPublic(e, h, opts)
	RegisterBuyer(e, h, opts)
	RegisterSeller(e, h, opts)
}

// RegisterRoutes registers the unauthenticated system endpoints.
func RegisterRoutes(e *echo.Echo, withMetrics bool) {
	e.GET("/healthz", handler.Health)
	if withMetrics {
		e.GET("/metrics", metrics.Handler())
	}
}

// RegisterPublic registers the guest-visible event page.
func RegisterPublic(e *echo.Echo, h *handler.Handler, opts Options) {
	e.GET("/v1/events/:id", h.GetEvent, optional(opts.Cache)...)
}

func optional(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
