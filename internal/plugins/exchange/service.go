// Package exchange implements the API-key session exchange: a partner signs
// a short assertion with a registered keypair's private half, and the
// server swaps it for a session JWT signed under the platform key.
package exchange

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/config"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
	"github.com/gatehouseid/gatehouse/internal/plugins/apikeys"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
)

// sessionIssuer is the iss claim of minted session assertions.
const sessionIssuer = "gatehouse"

// Request is the validated input for one exchange attempt.
type Request struct {
	KID      string
	JWTToken string
	Meta     audit.Metadata
}

// Service verifies partner-signed assertions and mints session JWTs.
type Service interface {
	// GenerateJWT runs one exchange attempt. Like sign-in, every terminal
	// outcome leaves exactly one audit row before the result is returned.
	GenerateJWT(ctx context.Context, req Request) (string, error)
}

// service implements Service.
type service struct {
	keypairs apikeys.Service
	accounts account.Repository
	auditor  audit.Service

	signingKey *rsa.PrivateKey
	keyID      string
	sessionTTL time.Duration
	now        func() time.Time
}

// NewService wires the exchange pipeline.
func NewService(
	keypairs apikeys.Service,
	accounts account.Repository,
	auditor audit.Service,
	cfg config.AuthConfig,
) Service {
	return &service{
		keypairs:   keypairs,
		accounts:   accounts,
		auditor:    auditor,
		signingKey: cfg.JWTPrivateKey,
		keyID:      cfg.JWTKeyID,
		sessionTTL: cfg.SessionJWTTTL,
		now:        time.Now,
	}
}

// GenerateJWT resolves the kid, verifies the inbound assertion against the
// registered public key, audits the outcome, and mints the session JWT.
func (s *service) GenerateJWT(ctx context.Context, req Request) (string, error) {
	kp, err := s.keypairs.Resolve(ctx, req.KID)
	if err != nil {
		// No keypair, no account: the audit entry carries a nil id.
		return "", s.fail(ctx, nil, req.Meta, apperror.NewInvalidPayload(
			fmt.Errorf("resolving keypair %q: %w", req.KID, err)))
	}

	acct, err := s.accounts.FindByID(ctx, kp.AccountID)
	if err != nil {
		return "", s.fail(ctx, nil, req.Meta, apperror.NewInvalidPayload(
			fmt.Errorf("resolving keypair owner: %w", err)))
	}
	if !acct.Active() || acct.Locked() {
		return "", s.fail(ctx, &acct.ID, req.Meta, apperror.NewInvalidPayload(
			errors.New("keypair owner is not active")))
	}

	if err := s.verifyAssertion(req.JWTToken, kp); err != nil {
		return "", s.fail(ctx, &acct.ID, req.Meta, err)
	}

	if err := s.auditor.Record(ctx, &acct.ID, audit.ActionAPIKeySession, audit.StatusSucceed, req.Meta); err != nil {
		return "", err
	}

	token, err := s.mintSessionJWT(acct, kp)
	if err != nil {
		slog.Error("failed to mint session jwt",
			slog.String("account_uid", acct.UID),
			slog.Any("error", err),
		)
		return "", apperror.NewInternal(err)
	}
	return token, nil
}

// fail records the failure's audit row and returns the exchange error. An
// audit write failure supersedes, same as the sign-in pipeline.
func (s *service) fail(ctx context.Context, accountID *int64, meta audit.Metadata, exchErr error) error {
	if err := s.auditor.Record(ctx, accountID, audit.ActionAPIKeySession, audit.StatusError, meta); err != nil {
		return err
	}
	return exchErr
}

// verifyAssertion checks the inbound JWT against the keypair's public key.
// A string that does not even parse as a JWT is a decode error with the
// diagnostic surfaced; every other verification failure collapses into
// invalid_payload with the granular cause kept internal.
func (s *service) verifyAssertion(tokenString string, kp *apikeys.Keypair) error {
	publicKey, err := apikeys.ParsePublicKey(kp.PublicKey)
	if err != nil {
		return apperror.NewInvalidPayload(fmt.Errorf("parsing registered public key: %w", err))
	}

	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return publicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return apperror.NewDecodeError(err)
		}
		return apperror.NewInvalidPayload(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperror.NewInvalidPayload(errors.New("unexpected claims type"))
	}
	// A jti nonce is required so assertions are single-purpose.
	if jti, _ := claims["jti"].(string); jti == "" {
		return apperror.NewInvalidPayload(errors.New("missing jti claim"))
	}
	return nil
}

// mintSessionJWT signs the session assertion under the platform key.
func (s *service) mintSessionJWT(acct *account.Account, kp *apikeys.Keypair) (string, error) {
	if s.signingKey == nil {
		return "", errors.New("platform signing key is not configured")
	}

	now := s.now().UTC()
	ttl := s.sessionTTL
	if kp.Lifetime > 0 {
		ttl = time.Duration(kp.Lifetime) * time.Second
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":    sessionIssuer,
		"sub":    acct.UID,
		"email":  acct.Email,
		"scopes": kp.Scopes,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
		"jti":    uuid.NewString(),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session jwt: %w", err)
	}
	return signed, nil
}
