package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// JoinQueue handles POST /v1/events/:id/queue.  The returned entry is
// already offered when a ticket was free.
func (h *Handler) JoinQueue(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	entry, err := h.Svc.JoinQueue(c.Request().Context(), model.EventID(eventID), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// QueuePosition handles GET /v1/events/:id/queue.
func (h *Handler) QueuePosition(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	pos, err := h.Svc.QueuePosition(c.Request().Context(), model.EventID(eventID), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pos)
}

// ReleaseOffer handles DELETE /v1/queue/:id.
func (h *Handler) ReleaseOffer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid waiting list id")
	}
	if err := h.Svc.ReleaseOffer(c.Request().Context(), model.WaitingListID(entryID), userID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
