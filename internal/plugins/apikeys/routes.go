package apikeys

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up keypair CRUD on the given route group. The group
// is expected to carry the access-token middleware.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/keypairs", h.List)
	g.POST("/keypairs", h.Create)
	g.GET("/keypairs/:uid", h.Get)
	g.PUT("/keypairs/:uid", h.Update)
	g.DELETE("/keypairs/:uid", h.Delete)
}
