package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
)

// RegisterSeller registers event management and the manual payment
// decision endpoints.  Any authenticated user may publish an event; the
// service checks that later calls come from the event's seller.
func RegisterSeller(e *echo.Echo, h *handler.Handler, opts Options) {
	g := e.Group("/v1", middleware.JWTAuth(opts.JWTSecret))

	g.POST("/events", h.CreateEvent)
	g.PATCH("/events/:id", h.UpdateEvent)
	g.POST("/events/:id/cancel", h.CancelEvent)
	g.GET("/events/:id/transactions", h.ListTransactions)
	g.GET("/seller/events", h.ListSellerEvents)

	g.POST("/transactions/:id/approve", h.ApproveTransaction)
	g.POST("/transactions/:id/reject", h.RejectTransaction)
}
