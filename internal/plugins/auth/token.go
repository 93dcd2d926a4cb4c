package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/config"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
)

// tokenKeyPrefix is the Redis key prefix for access-token records.
const tokenKeyPrefix = "access_token:"

// tokenBytes is the number of random bytes in an access token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// IssuedToken is the bearer credential handed to the client.
type IssuedToken struct {
	Token         string    `json:"token"`
	AccountUID    string    `json:"-"`
	ApplicationID string    `json:"application_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TokenClaims is the server-side record behind an opaque token. Stored in
// Redis under the token with a TTL matching the expiry, so expired tokens
// vanish without a sweeper.
type TokenClaims struct {
	AccountID     int64     `json:"account_id"`
	AccountUID    string    `json:"account_uid"`
	ApplicationID string    `json:"application_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Issuer mints opaque access tokens bound to (account, application, expiry).
// A token issued for one application never validates for another: Verify
// returns the bound application and middleware-level checks compare it.
type Issuer struct {
	redis      *redis.Client
	defaultTTL time.Duration
	minTTL     time.Duration
	maxTTL     time.Duration
}

// NewIssuer creates a token issuer with the configured TTL policy.
func NewIssuer(rdb *redis.Client, cfg config.AuthConfig) *Issuer {
	return &Issuer{
		redis:      rdb,
		defaultTTL: cfg.TokenTTL,
		minTTL:     cfg.TokenTTLMin,
		maxTTL:     cfg.TokenTTLMax,
	}
}

// Issue mints a token for the account bound to the application. A zero
// requested TTL selects the default; anything else is clamped to the
// configured [min, max] policy bounds -- the caller's wish is never trusted
// outside them.
func (i *Issuer) Issue(ctx context.Context, acct *account.Account, applicationUID string, requestedTTL time.Duration) (*IssuedToken, error) {
	ttl := i.clamp(requestedTTL)

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	token := hex.EncodeToString(raw)

	expiresAt := time.Now().UTC().Add(ttl)
	claims := TokenClaims{
		AccountID:     acct.ID,
		AccountUID:    acct.UID,
		ApplicationID: applicationUID,
		ExpiresAt:     expiresAt,
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("marshaling token claims: %w", err)
	}

	if err := i.redis.Set(ctx, tokenKeyPrefix+token, data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}

	return &IssuedToken{
		Token:         token,
		AccountUID:    acct.UID,
		ApplicationID: applicationUID,
		ExpiresAt:     expiresAt,
	}, nil
}

// Verify resolves an opaque token to its claims. Unknown and expired tokens
// are indistinguishable (both read as missing keys).
func (i *Issuer) Verify(ctx context.Context, token string) (*TokenClaims, error) {
	data, err := i.redis.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("token expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading access token: %w", err))
	}

	var claims TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling token claims: %w", err))
	}
	return &claims, nil
}

// clamp applies the TTL policy bounds.
func (i *Issuer) clamp(requested time.Duration) time.Duration {
	if requested == 0 {
		return i.defaultTTL
	}
	if requested < i.minTTL {
		return i.minTTL
	}
	if requested > i.maxTTL {
		return i.maxTTL
	}
	return requested
}
