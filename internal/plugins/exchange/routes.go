package exchange

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/middleware"
)

// RegisterRoutes sets up the exchange endpoint on the public API group.
// Rate-limited like sign-in: the endpoint accepts unauthenticated input.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/sessions/generate_jwt", h.GenerateJWT, middleware.RateLimit(10, time.Minute))
}
