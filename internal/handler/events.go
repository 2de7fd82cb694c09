package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

type eventRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Location     *string          `json:"location"`
	EventDate    *time.Time       `json:"event_date"`
	Price        *decimal.Decimal `json:"price"`
	TotalTickets *int             `json:"total_tickets"`
}

type eventResponse struct {
	Event        *model.Event        `json:"event"`
	Availability *model.Availability `json:"availability"`
}

// CreateEvent handles POST /v1/events.  The caller becomes the seller and
// the email claim of their token receives pending-transaction notices.
func (h *Handler) CreateEvent(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return h.fail(c, errUnauthenticated)
	}
	var body eventRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Name == nil || body.EventDate == nil || body.Price == nil || body.TotalTickets == nil {
		return badRequest(c, "name, event_date, price and total_tickets are required")
	}
	in := service.EventInput{
		Name:         *body.Name,
		EventDate:    *body.EventDate,
		Price:        *body.Price,
		TotalTickets: *body.TotalTickets,
	}
	if body.Description != nil {
		in.Description = *body.Description
	}
	if body.Location != nil {
		in.Location = *body.Location
	}
	ev, err := h.Svc.CreateEvent(c.Request().Context(), model.UserID(id.UserID), id.Email, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// GetEvent handles GET /v1/events/:id with the live availability.
func (h *Handler) GetEvent(c echo.Context) error {
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	ctx := c.Request().Context()
	ev, err := h.Svc.GetEvent(ctx, model.EventID(eventID))
	if err != nil {
		return h.fail(c, err)
	}
	avail, err := h.Svc.Availability(ctx, ev.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, eventResponse{Event: ev, Availability: avail})
}

// UpdateEvent handles PATCH /v1/events/:id.
func (h *Handler) UpdateEvent(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body eventRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ev, err := h.Svc.UpdateEvent(c.Request().Context(), model.EventID(eventID), sellerID, service.EventPatch{
		Name:         body.Name,
		Description:  body.Description,
		Location:     body.Location,
		EventDate:    body.EventDate,
		Price:        body.Price,
		TotalTickets: body.TotalTickets,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// CancelEvent handles POST /v1/events/:id/cancel.
func (h *Handler) CancelEvent(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	refunded, err := h.Svc.CancelEvent(c.Request().Context(), model.EventID(eventID), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "refunded_tickets": refunded})
}

// ListSellerEvents handles GET /v1/seller/events.
func (h *Handler) ListSellerEvents(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	events, err := h.Svc.ListSellerEvents(c.Request().Context(), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

// ListTransactions handles GET /v1/events/:id/transactions?status=.
func (h *Handler) ListTransactions(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	status := model.TransactionStatus(c.QueryParam("status"))
	txs, err := h.Svc.ListTransactions(c.Request().Context(), model.EventID(eventID), sellerID, status)
	if err != nil {
		return h.fail(c, err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
