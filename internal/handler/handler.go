// Package handler exposes the ticketing service over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// Handler bundles the service behind every route.  Authentication has
// already been done by middleware; ownership is enforced by the service.
type Handler struct {
	Svc    *service.Service
	Logger *slog.Logger
}

// New constructs a Handler and panics if svc is nil.
func New(svc *service.Service, logger *slog.Logger) *Handler {
	if svc == nil {
		panic("nil service passed to handler.New")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Logger: logger.With("component", "http")}
}

var errUnauthenticated = errors.New("unauthenticated")

// getUserID returns the authenticated caller.
func getUserID(c echo.Context) (model.UserID, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return "", errUnauthenticated
	}
	return model.UserID(id.UserID), nil
}

// pathID parses a positive int64 path parameter.
func pathID(c echo.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	return n, err == nil && n > 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// fail maps a service error to its HTTP status.  Unexpected errors are
// logged and their text is not sent to the client.
func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrOwnershipMismatch):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyInQueue),
		errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrInvalidState):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
