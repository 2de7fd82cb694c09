package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// CreateTransaction handles POST /v1/events/:id/transactions.  Contact
// fields left empty fall back to the claims of the caller's token.
func (h *Handler) CreateTransaction(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return h.fail(c, errUnauthenticated)
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body struct {
		WaitingListID int64  `json:"waiting_list_id"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		Phone         string `json:"phone"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.WaitingListID <= 0 {
		return badRequest(c, "waiting_list_id is required")
	}
	contact := model.Contact{Name: body.Name, Email: body.Email, Phone: body.Phone}
	if contact.Name == "" {
		contact.Name = id.Name
	}
	if contact.Email == "" {
		contact.Email = id.Email
	}
	if contact.Phone == "" {
		contact.Phone = id.Phone
	}
	tx, err := h.Svc.CreatePendingTransaction(c.Request().Context(), model.EventID(eventID),
		model.UserID(id.UserID), model.WaitingListID(body.WaitingListID), contact)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, tx)
}

// GetTransaction handles GET /v1/transactions/:id for the buyer.
func (h *Handler) GetTransaction(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid transaction id")
	}
	tx, err := h.Svc.GetTransaction(c.Request().Context(), model.TransactionID(txID), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// ApproveTransaction handles POST /v1/transactions/:id/approve.
func (h *Handler) ApproveTransaction(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid transaction id")
	}
	ticket, err := h.Svc.ApproveTransaction(c.Request().Context(), model.TransactionID(txID), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ticket)
}

// RejectTransaction handles POST /v1/transactions/:id/reject.
func (h *Handler) RejectTransaction(c echo.Context) error {
	sellerID, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	txID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid transaction id")
	}
	tx, err := h.Svc.RejectTransaction(c.Request().Context(), model.TransactionID(txID), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}
