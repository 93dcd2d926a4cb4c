package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Handler handles HTTP requests for the audit trail. Handlers are thin:
// they resolve the caller, call the service, and render JSON. No business
// logic lives here.
type Handler struct {
	service Service

	// currentAccount resolves the authenticated account id from the
	// request context. Injected at wiring time so this package does not
	// depend on the auth plugin (the dependency runs the other way).
	currentAccount func(echo.Context) int64
}

// NewHandler creates a new audit handler.
func NewHandler(service Service, currentAccount func(echo.Context) int64) *Handler {
	return &Handler{service: service, currentAccount: currentAccount}
}

// List returns the caller's recent device activity (GET /api/v1/audit).
func (h *Handler) List(c echo.Context) error {
	accountID := h.currentAccount(c)
	if accountID == 0 {
		return apperror.NewUnauthorized("authentication required")
	}

	entries, err := h.service.ListByAccount(c.Request().Context(), accountID)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}

	return c.JSON(http.StatusOK, entries)
}
