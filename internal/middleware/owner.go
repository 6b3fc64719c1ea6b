package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// OwnerHeader carries the owner password on owner-only routes.
const OwnerHeader = "X-Owner-Password"

// RequireOwner rejects requests whose X-Owner-Password header does not
// match password with 403.  It guards the routes that change the feature
// flag and the menu.
func RequireOwner(password string) echo.MiddlewareFunc {
	want := []byte(password)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(OwnerHeader))
			if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
