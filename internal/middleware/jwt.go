package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-waiter/internal/utils"
)

// Context keys set by WaiterAuth.
const (
	ctxWaiterID   = "waiter_id"
	ctxWaiterName = "waiter_name"
)

// WaiterAuth returns an Echo middleware that validates a Bearer access
// token issued at waiter login and stores the waiter id and name in the
// request context.  Handlers read them back with WaiterID and WaiterName.
func WaiterAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxWaiterID, claims.WaiterID)
			c.Set(ctxWaiterName, claims.Name)
			return next(c)
		}
	}
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}
