// Package account owns the identity records: registration, email
// confirmation, unlock, password management, and second-factor enrollment.
// The sign-in pipeline (internal/plugins/auth) reads accounts through this
// package's repository but never mutates them beyond device linkage.
package account

import "time"

// Account states. A pending account has not confirmed its email address and
// cannot authenticate.
const (
	StatePending = "pending"
	StateActive  = "active"
)

// Account roles. Admins can manage site-wide settings such as the SMTP
// relay configuration.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Token kinds stored in account_tokens. Each kind is an independent
// namespace: a confirmation token can never be replayed as a reset token.
const (
	TokenKindConfirm = "confirm"
	TokenKindUnlock  = "unlock"
	TokenKindReset   = "reset"
)

// Account represents a registered identity. This is the domain model used
// throughout the application.
type Account struct {
	ID           int64      `json:"-"`
	UID          string     `json:"uid"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	State        string     `json:"state"`
	Role         string     `json:"role"`
	Level        int        `json:"level"`
	OTPEnabled   bool       `json:"otp_enabled"`
	DiscardedAt  *time.Time `json:"-"` // Soft delete marker. Discarded accounts never authenticate.
	LockedAt     *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the account completed email confirmation.
func (a *Account) Active() bool {
	return a.State == StateActive
}

// Locked reports whether the account is administratively locked.
func (a *Account) Locked() bool {
	return a.LockedAt != nil
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted to POST /accounts.
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ConfirmRequest holds the data submitted to POST /accounts/confirm.
type ConfirmRequest struct {
	ConfirmationToken string `json:"confirmation_token" form:"confirmation_token"`
}

// UnlockRequest holds the data submitted to POST /accounts/unlock.
type UnlockRequest struct {
	UnlockToken string `json:"unlock_token" form:"unlock_token"`
}

// EmailRequest holds a bare email for the resend-instructions endpoints.
type EmailRequest struct {
	Email string `json:"email" form:"email"`
}

// ChangePasswordRequest holds the data submitted to PUT /accounts/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" form:"old_password"`
	NewPassword string `json:"new_password" form:"new_password"`
}

// ResetPasswordRequest holds the data submitted to POST /accounts/reset_password.
type ResetPasswordRequest struct {
	ResetToken string `json:"reset_token" form:"reset_token"`
	Password   string `json:"password" form:"password"`
}

// DisableOTPRequest holds the data submitted to DELETE /accounts/otp.
type DisableOTPRequest struct {
	Code string `json:"code" form:"code"`
}
