package apikeys

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Handler handles HTTP requests for keypair management. Handlers are thin:
// they bind the request, call the service, and render the response.
type Handler struct {
	service Service

	// currentAccount extracts the authenticated account's ID from the
	// request context. Injected to avoid a dependency on the auth plugin.
	currentAccount func(echo.Context) int64
}

// NewHandler creates a new keypairs handler.
func NewHandler(service Service, currentAccount func(echo.Context) int64) *Handler {
	return &Handler{service: service, currentAccount: currentAccount}
}

// List returns all keypairs owned by the caller (GET /keypairs).
func (h *Handler) List(c echo.Context) error {
	keypairs, err := h.service.List(c.Request().Context(), h.currentAccount(c))
	if err != nil {
		return err
	}
	if keypairs == nil {
		keypairs = []Keypair{}
	}
	return c.JSON(http.StatusOK, keypairs)
}

// Get returns one keypair by uid (GET /keypairs/:uid).
func (h *Handler) Get(c echo.Context) error {
	kp, err := h.service.Get(c.Request().Context(), h.currentAccount(c), c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, kp)
}

// Create registers a new keypair (POST /keypairs).
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	kp, err := h.service.Create(c.Request().Context(), h.currentAccount(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, kp)
}

// Update modifies a keypair (PUT /keypairs/:uid).
func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	kp, err := h.service.Update(c.Request().Context(), h.currentAccount(c), c.Param("uid"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, kp)
}

// Delete removes a keypair (DELETE /keypairs/:uid).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), h.currentAccount(c), c.Param("uid")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
