package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// WaiterID returns the authenticated waiter's id, or 0 when the request
// did not pass through WaiterAuth.
func WaiterID(c echo.Context) int64 {
	if v, ok := c.Get(ctxWaiterID).(int64); ok {
		return v
	}
	return 0
}

// WaiterName returns the authenticated waiter's display name.
func WaiterName(c echo.Context) string {
	s, _ := c.Get(ctxWaiterName).(string)
	return s
}

// subject identifies the caller for rate-limit keys: the waiter id when
// authenticated, "anon" otherwise.
func subject(c echo.Context) string {
	if id := WaiterID(c); id > 0 {
		return strconv.FormatInt(id, 10)
	}
	return "anon"
}
