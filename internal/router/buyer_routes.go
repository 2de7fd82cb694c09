package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// RegisterBuyer registers the endpoints a buyer uses to queue, claim an
// offer and see their tickets.  All require a valid JWT; the limiter runs
// after authentication so that it can key on the user.
func RegisterBuyer(e *echo.Echo, h *handler.Handler, opts Options) {
	g := e.Group("/v1", middleware.JWTAuth(opts.JWTSecret))
	limited := optional(opts.RateLimit)

	g.POST("/events/:id/queue", h.JoinQueue, limited...)
	g.GET("/events/:id/queue", h.QueuePosition)
	g.DELETE("/queue/:id", h.ReleaseOffer)
	g.POST("/events/:id/transactions", h.CreateTransaction, limited...)
	g.GET("/transactions/:id", h.GetTransaction)
	g.GET("/my-tickets", h.MyTickets)
}
