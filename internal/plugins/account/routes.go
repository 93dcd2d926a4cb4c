package account

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/middleware"
)

// RegisterRoutes sets up account routes. Lifecycle endpoints (register,
// confirm, unlock, reset) are public; profile endpoints are registered on
// the authed group, which carries the access-token middleware.
//
// POST endpoints that touch credentials are rate-limited to slow down
// enumeration and credential-stuffing attempts.
func RegisterRoutes(public, authed *echo.Group, h *Handler) {
	public.POST("/accounts", h.Register, middleware.RateLimit(5, time.Minute))
	public.POST("/accounts/confirm", h.Confirm)
	public.POST("/accounts/send_confirmation_instructions", h.SendConfirmationInstructions, middleware.RateLimit(5, time.Minute))
	public.POST("/accounts/unlock", h.Unlock)
	public.POST("/accounts/send_unlock_instructions", h.SendUnlockInstructions, middleware.RateLimit(5, time.Minute))
	public.POST("/accounts/forgot_password", h.ForgotPassword, middleware.RateLimit(5, time.Minute))
	public.POST("/accounts/reset_password", h.ResetPassword)

	authed.GET("/accounts/me", h.Me)
	authed.PUT("/accounts/password", h.ChangePassword)
	authed.POST("/accounts/otp", h.EnableOTP)
	authed.DELETE("/accounts/otp", h.DisableOTP)
}
