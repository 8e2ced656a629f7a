package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers the liveness probe other nodes and load balancers send.
// Any 2xx counts as healthy.
func Health(role, nodeID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "role": role, "node": nodeID})
	}
}
