package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
)

// Context keys for storing token claims in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated account's identity.
const (
	contextKeyClaims     = "auth_claims"
	contextKeyAccountID  = "auth_account_id"
	contextKeyAccountUID = "auth_account_uid"
)

// RequireToken returns middleware that validates the bearer access token and
// injects its claims into the request context. Requests without a valid
// token get a 401 JSON response.
func RequireToken(issuer *Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			claims, err := issuer.Verify(c.Request().Context(), token)
			if err != nil {
				return err
			}

			// Store claims in context for downstream handlers.
			c.Set(contextKeyClaims, claims)
			c.Set(contextKeyAccountID, claims.AccountID)
			c.Set(contextKeyAccountUID, claims.AccountUID)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that restricts the route to admin
// accounts. It must run after RequireToken. The role is read from the
// database on every request so a demotion takes effect immediately.
func RequireAdmin(accounts account.Repository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := GetAccountID(c)
			if id == 0 {
				return apperror.NewUnauthorized("authentication required")
			}

			acct, err := accounts.FindByID(c.Request().Context(), id)
			if err != nil {
				return apperror.NewForbidden("admin access required")
			}
			if acct.Role != account.RoleAdmin {
				return apperror.NewForbidden("admin access required")
			}

			return next(c)
		}
	}
}

// --- Exported getters for other plugins ---

// GetClaims retrieves the verified token claims from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetClaims(c echo.Context) *TokenClaims {
	claims, ok := c.Get(contextKeyClaims).(*TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAccountID retrieves the authenticated account's ID from the Echo
// context. Returns 0 if the request is not authenticated.
func GetAccountID(c echo.Context) int64 {
	id, ok := c.Get(contextKeyAccountID).(int64)
	if !ok {
		return 0
	}
	return id
}

// GetAccountUID retrieves the authenticated account's public uid from the
// Echo context. Returns empty string if the request is not authenticated.
func GetAccountUID(c echo.Context) string {
	uid, ok := c.Get(contextKeyAccountUID).(string)
	if !ok {
		return ""
	}
	return uid
}

// --- Helpers ---

// bearerToken extracts the token from the Authorization header.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
