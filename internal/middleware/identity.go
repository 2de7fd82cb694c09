package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/auth"
)

const (
	ctxIdentity = "identity"
	ctxUserID   = "user_id"
)

// CurrentIdentity returns the identity JWTAuth stored for this request.
func CurrentIdentity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(auth.Identity)
	return id, ok && id.UserID != ""
}

// currentUserID is the rate limiter's view of the caller.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
