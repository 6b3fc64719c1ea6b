package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers discovery probes.  Clients treat a server as present only
// when the body carries ok == true.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
