package smtp

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the SMTP settings endpoints. The group is expected
// to carry both the access-token and admin-role middleware.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/smtp", h.Settings)
	g.PUT("/smtp", h.UpdateSettings)
	g.POST("/smtp/test", h.TestConnection)
}
