// Package auth implements the sign-in decision pipeline: credential
// verification, device-trust driven second-factor enforcement, audit
// logging, and access-token issuance.
//
// All in-flight decision state is request-scoped: each SignIn call builds a
// fresh signInState and nothing is shared across requests beyond the
// persisted account, device, and audit rows.
package auth

import (
	"time"

	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
)

// Device is a per-account trust record keyed by an opaque device uid held by
// the client. At most one row exists per (account, uid); Gatehouse never
// deletes devices.
type Device struct {
	ID           int64      `json:"-"`
	AccountID    int64      `json:"-"`
	UID          string     `json:"uid"`
	LastSignInAt time.Time  `json:"last_sign_in_at"`

	// CheckOTPAt is when the device's trust window ends and a fresh OTP
	// challenge is due. Nil means no second-factor check has ever been
	// completed on this device, which reads as "due now".
	CheckOTPAt *time.Time `json:"check_otp_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application is a registered relying party. Read-only from the pipeline's
// perspective; rows are managed operationally.
type Application struct {
	ID        int64     `json:"-"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SignInRequest is the validated input for one authentication attempt.
// DeviceUID and Meta are filled by the handler from the transport layer,
// not by the client body.
type SignInRequest struct {
	Email         string
	Password      string
	ApplicationID string
	RememberMe    bool
	ExpiresIn     time.Duration // Zero means "use the configured default".
	OTPCode       string
	DeviceUID     string
	Meta          audit.Metadata
}

// SignInResult is the pipeline's only successful return value.
type SignInResult struct {
	Token *IssuedToken

	// NewDeviceUID is set when this attempt created a device record; the
	// caller persists it client-side so future requests reuse it.
	NewDeviceUID string
}

// --- Request DTOs (bound from HTTP requests) ---

// SignInBody is the JSON body of POST /api/v1/sessions.
type SignInBody struct {
	Email         string `json:"email" form:"email"`
	Password      string `json:"password" form:"password"`
	ApplicationID string `json:"application_id" form:"application_id"`
	RememberMe    bool   `json:"remember_me" form:"remember_me"`
	ExpiresIn     int64  `json:"expires_in" form:"expires_in"` // Seconds.
	OTPCode       string `json:"otp_code" form:"otp_code"`
}
