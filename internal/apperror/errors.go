// Package apperror provides domain-specific error types for Gatehouse.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw database, Redis, or secret-store errors to the client.
// Always wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 401, 403, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "invalid_credentials").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// IsType reports whether err is an *AppError with the given Type. Used by
// callers that branch on the machine-readable kind rather than the HTTP code.
func IsType(err error, typ string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == typ
}

// --- Authentication error types ---
//
// The sign-in pipeline and the JWT exchange classify every failure into one
// of these kinds before it leaves the service layer. Message wording is part
// of the contract: "unknown email" and "wrong password" must be
// byte-identical to the caller so account existence cannot be enumerated.

const (
	TypeInvalidCredentials  = "invalid_credentials"
	TypeAccountNotConfirmed = "account_not_confirmed"
	TypeUnknownApplication  = "unknown_application"
	TypeOTPMissing          = "otp_missing"
	TypeOTPInvalid          = "otp_invalid"
	TypeInvalidPayload      = "invalid_payload"
	TypeDecodeError         = "decode_error"
	TypeAuditWriteFailure   = "audit_write_failure"
)

// NewInvalidCredentials covers both "account not found" and "wrong password".
// The two cases are intentionally indistinguishable.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredentials,
		Message: "invalid email or password",
	}
}

// NewAccountNotConfirmed is returned when the password was correct but the
// account has not completed email confirmation. Distinct from invalid
// credentials: it signals email ownership, not secrecy.
func NewAccountNotConfirmed() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeAccountNotConfirmed,
		Message: "you have to confirm your email address before continuing",
	}
}

// NewUnknownApplication is returned for an application id with no registered
// relying party.
func NewUnknownApplication() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnknownApplication,
		Message: "wrong application id",
	}
}

// NewOTPMissing is returned when the account requires a second factor but no
// code was submitted.
func NewOTPMissing() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeOTPMissing,
		Message: "the account has enabled 2fa but otp code is missing",
	}
}

// NewOTPInvalid covers a non-matching code and secret-store unavailability.
// The two are intentionally indistinguishable so store availability cannot
// be used as an oracle.
func NewOTPInvalid() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeOTPInvalid,
		Message: "otp code is invalid",
	}
}

// NewInvalidPayload covers every verification failure of an inbound signed
// assertion: unknown key id, bad signature, expired, malformed claims. The
// granular cause is carried in Internal for logging only.
func NewInvalidPayload(cause error) *AppError {
	return &AppError{
		Code:     http.StatusUnauthorized,
		Type:     TypeInvalidPayload,
		Message:  "payload is invalid",
		Internal: cause,
	}
}

// NewDecodeError is returned when the inbound token string is not even
// parseable as a signed token. Unlike NewInvalidPayload, the decode
// diagnostic is surfaced to the caller.
func NewDecodeError(cause error) *AppError {
	return &AppError{
		Code:     http.StatusUnauthorized,
		Type:     TypeDecodeError,
		Message:  fmt.Sprintf("failed to decode and verify jwt: %v", cause),
		Internal: cause,
	}
}

// NewAuditWriteFailure is returned when an audit entry could not be written.
// Losing the audit trail for an attempt is an operational incident, so the
// request fails with a server error distinct from any authentication status.
func NewAuditWriteFailure(cause error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeAuditWriteFailure,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: cause,
	}
}

// --- Constructors for common error types ---

const (
	TypeNotFound     = "not_found"
	TypeBadRequest   = "bad_request"
	TypeUnauthorized = "unauthorized"
	TypeForbidden    = "forbidden"
	TypeConflict     = "conflict"
	TypeValidation   = "validation_error"
	TypeInternal     = "internal_error"
)

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    TypeForbidden,
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeConflict,
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
