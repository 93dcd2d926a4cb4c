package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Handler handles HTTP requests for account management. Handlers are thin:
// they bind the request, call the service, and render JSON. No business
// logic lives here.
type Handler struct {
	service Service

	// currentAccount resolves the authenticated account id from the
	// request context. Injected at wiring time to avoid a dependency on
	// the auth plugin.
	currentAccount func(echo.Context) int64
}

// NewHandler creates a new account handler.
func NewHandler(service Service, currentAccount func(echo.Context) int64) *Handler {
	return &Handler{service: service, currentAccount: currentAccount}
}

// Register creates a new account (POST /api/v1/accounts).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	acct, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, acct)
}

// Confirm activates a pending account (POST /api/v1/accounts/confirm).
func (h *Handler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.Confirm(c.Request().Context(), req.ConfirmationToken); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "account confirmed"})
}

// SendConfirmationInstructions re-sends the confirmation email
// (POST /api/v1/accounts/send_confirmation_instructions). Always answers
// with success to avoid leaking whether the email exists.
func (h *Handler) SendConfirmationInstructions(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return apperror.NewBadRequest("email is required")
	}

	_ = h.service.SendConfirmationInstructions(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "confirmation instructions were sent successfully",
	})
}

// Unlock clears an account lock (POST /api/v1/accounts/unlock).
func (h *Handler) Unlock(c echo.Context) error {
	var req UnlockRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.Unlock(c.Request().Context(), req.UnlockToken); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "account unlocked"})
}

// SendUnlockInstructions sends the unlock email
// (POST /api/v1/accounts/send_unlock_instructions).
func (h *Handler) SendUnlockInstructions(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return apperror.NewBadRequest("email is required")
	}

	_ = h.service.SendUnlockInstructions(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "unlock instructions were sent successfully",
	})
}

// Me returns the authenticated account (GET /api/v1/accounts/me).
func (h *Handler) Me(c echo.Context) error {
	accountID := h.currentAccount(c)
	if accountID == 0 {
		return apperror.NewUnauthorized("authentication required")
	}

	acct, err := h.service.Get(c.Request().Context(), accountID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, acct)
}

// ChangePassword updates the caller's password (PUT /api/v1/accounts/password).
func (h *Handler) ChangePassword(c echo.Context) error {
	accountID := h.currentAccount(c)
	if accountID == 0 {
		return apperror.NewUnauthorized("authentication required")
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ChangePassword(c.Request().Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "password changed"})
}

// ForgotPassword initiates a password reset
// (POST /api/v1/accounts/forgot_password). Always answers with success.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return apperror.NewBadRequest("email is required")
	}

	_ = h.service.InitiatePasswordReset(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "reset instructions were sent successfully",
	})
}

// ResetPassword consumes a reset token (POST /api/v1/accounts/reset_password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.ResetToken, req.Password); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "password reset"})
}

// EnableOTP enrolls the caller in 2FA (POST /api/v1/accounts/otp).
func (h *Handler) EnableOTP(c echo.Context) error {
	accountID := h.currentAccount(c)
	if accountID == 0 {
		return apperror.NewUnauthorized("authentication required")
	}

	if err := h.service.EnableOTP(c.Request().Context(), accountID); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{"message": "2fa enabled"})
}

// DisableOTP turns off 2FA after verifying a code (DELETE /api/v1/accounts/otp).
func (h *Handler) DisableOTP(c echo.Context) error {
	accountID := h.currentAccount(c)
	if accountID == 0 {
		return apperror.NewUnauthorized("authentication required")
	}

	var req DisableOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.DisableOTP(c.Request().Context(), accountID, req.Code); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "2fa disabled"})
}
