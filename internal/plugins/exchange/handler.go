package exchange

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
)

// Handler handles HTTP requests for the JWT exchange.
type Handler struct {
	service Service
}

// NewHandler creates a new exchange handler with the given service.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// generateJWTBody is the exchange request payload.
type generateJWTBody struct {
	KID      string `json:"kid"`
	JWTToken string `json:"jwt_token"`
}

// GenerateJWT swaps a partner-signed assertion for a platform session JWT
// (POST /api/v1/sessions/generate_jwt).
func (h *Handler) GenerateJWT(c echo.Context) error {
	var body generateJWTBody
	if err := c.Bind(&body); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if body.KID == "" || body.JWTToken == "" {
		return apperror.NewBadRequest("kid and jwt_token are required")
	}

	req := Request{
		KID:      body.KID,
		JWTToken: body.JWTToken,
		Meta: audit.Metadata{
			UserIP:    c.RealIP(),
			UserAgent: c.Request().Header.Get("User-Agent"),
			Country:   c.Request().Header.Get("CF-IPCountry"),
		},
	}

	token, err := h.service.GenerateJWT(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
