package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// MyTickets handles GET /v1/my-tickets.
func (h *Handler) MyTickets(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	tickets, err := h.Svc.ListTickets(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}
