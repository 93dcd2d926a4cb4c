package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up audit routes on the given group. The group is
// expected to carry the access-token middleware already -- the trail is
// only readable by its owner.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/audit", h.List)
}
