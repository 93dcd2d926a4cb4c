package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/middleware"
)

// RegisterRoutes sets up the session endpoint on the public API group.
// The RequireToken middleware is exported separately for other plugins to
// attach to their route groups.
//
// Sign-in is rate-limited to blunt brute-force and credential stuffing:
// 10 attempts per IP per minute.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.POST("/sessions", h.SignIn, middleware.RateLimit(10, time.Minute))
}
