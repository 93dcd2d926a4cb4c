package exchange

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/config"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
	"github.com/gatehouseid/gatehouse/internal/plugins/apikeys"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
)

// --- Mocks ---

type mockKeypairs struct {
	apikeys.Service
	resolveFn func(ctx context.Context, kid string) (*apikeys.Keypair, error)
}

func (m *mockKeypairs) Resolve(ctx context.Context, kid string) (*apikeys.Keypair, error) {
	return m.resolveFn(ctx, kid)
}

type mockAccounts struct {
	account.Repository
	findByIDFn func(ctx context.Context, id int64) (*account.Account, error)
}

func (m *mockAccounts) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	return m.findByIDFn(ctx, id)
}

type mockAuditor struct {
	records []recordedAudit
}

type recordedAudit struct {
	accountID *int64
	action    string
	status    string
}

func (m *mockAuditor) Record(ctx context.Context, accountID *int64, action, status string, meta audit.Metadata) error {
	m.records = append(m.records, recordedAudit{accountID, action, status})
	return nil
}

func (m *mockAuditor) ListByAccount(ctx context.Context, accountID int64) ([]audit.Entry, error) {
	return nil, nil
}

// --- Fixture ---

type fixture struct {
	svc        Service
	auditor    *mockAuditor
	partnerKey *rsa.PrivateKey
	platform   *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	partnerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating partner key: %v", err)
	}
	platformKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating platform key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&partnerKey.PublicKey)
	if err != nil {
		t.Fatalf("marshaling partner public key: %v", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	kp := &apikeys.Keypair{
		UID: "kid-1", AccountID: 7, Name: "partner",
		PublicKey: publicPEM, Scopes: "trade", Lifetime: 600,
		State: apikeys.StateActive,
	}
	acct := &account.Account{
		ID: 7, UID: "ID001", Email: "jane@example.com", State: account.StateActive,
	}

	auditor := &mockAuditor{}
	svc := NewService(
		&mockKeypairs{resolveFn: func(ctx context.Context, kid string) (*apikeys.Keypair, error) {
			if kid == kp.UID {
				return kp, nil
			}
			return nil, apperror.NewNotFound("keypair not found")
		}},
		&mockAccounts{findByIDFn: func(ctx context.Context, id int64) (*account.Account, error) {
			if id == acct.ID {
				return acct, nil
			}
			return nil, apperror.NewNotFound("account not found")
		}},
		auditor,
		config.AuthConfig{
			SessionJWTTTL: 10 * time.Minute,
			JWTKeyID:      "platform-key-1",
			JWTPrivateKey: platformKey,
		},
	)

	return &fixture{svc: svc, auditor: auditor, partnerKey: partnerKey, platform: platformKey}
}

// signAssertion mints a partner assertion with the given expiry offset.
func (f *fixture) signAssertion(t *testing.T, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	})
	signed, err := token.SignedString(f.partnerKey)
	if err != nil {
		t.Fatalf("signing assertion: %v", err)
	}
	return signed
}

func assertAudit(t *testing.T, auditor *mockAuditor, status string) {
	t.Helper()
	if len(auditor.records) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(auditor.records))
	}
	got := auditor.records[0]
	if got.action != audit.ActionAPIKeySession {
		t.Errorf("expected action %q, got %q", audit.ActionAPIKeySession, got.action)
	}
	if got.status != status {
		t.Errorf("expected status %q, got %q", status, got.status)
	}
}

// --- Tests ---

func TestGenerateJWT_Success(t *testing.T) {
	f := newFixture(t)

	token, err := f.svc.GenerateJWT(context.Background(), Request{
		KID:      "kid-1",
		JWTToken: f.signAssertion(t, time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAudit(t, f.auditor, audit.StatusSucceed)

	// The minted token must verify under the platform public key and
	// carry the session claims.
	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (any, error) {
		return &f.platform.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		t.Fatalf("verifying minted token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "gatehouse" || claims["sub"] != "ID001" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims["email"] != "jane@example.com" {
		t.Errorf("missing email claim: %+v", claims)
	}
	if kid, _ := parsed.Header["kid"].(string); kid != "platform-key-1" {
		t.Errorf("expected platform kid header, got %q", kid)
	}
}

func TestGenerateJWT_UnknownKID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateJWT(context.Background(), Request{
		KID:      "no-such-kid",
		JWTToken: f.signAssertion(t, time.Minute),
	})
	if !apperror.IsType(err, apperror.TypeInvalidPayload) {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
	assertAudit(t, f.auditor, audit.StatusError)
	if f.auditor.records[0].accountID != nil {
		t.Error("unknown kid audit entry should have nil account id")
	}
}

func TestGenerateJWT_ExpiredAssertion(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateJWT(context.Background(), Request{
		KID:      "kid-1",
		JWTToken: f.signAssertion(t, -time.Second),
	})
	if !apperror.IsType(err, apperror.TypeInvalidPayload) {
		t.Fatalf("expected invalid_payload for expired assertion, got %v", err)
	}
	assertAudit(t, f.auditor, audit.StatusError)
	if f.auditor.records[0].accountID == nil {
		t.Error("resolved-account failure should carry the account id")
	}
}

func TestGenerateJWT_WrongSigner(t *testing.T) {
	f := newFixture(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(), "jti": uuid.NewString(),
	})
	forged, err := token.SignedString(otherKey)
	if err != nil {
		t.Fatalf("signing forged assertion: %v", err)
	}

	_, err = f.svc.GenerateJWT(context.Background(), Request{KID: "kid-1", JWTToken: forged})
	if !apperror.IsType(err, apperror.TypeInvalidPayload) {
		t.Fatalf("expected invalid_payload for wrong signer, got %v", err)
	}
	assertAudit(t, f.auditor, audit.StatusError)
}

func TestGenerateJWT_GarbageToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateJWT(context.Background(), Request{
		KID:      "kid-1",
		JWTToken: "not even a jwt",
	})
	if !apperror.IsType(err, apperror.TypeDecodeError) {
		t.Fatalf("expected decode_error, got %v", err)
	}
	assertAudit(t, f.auditor, audit.StatusError)
}

func TestGenerateJWT_MissingJTI(t *testing.T) {
	f := newFixture(t)

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString(f.partnerKey)
	if err != nil {
		t.Fatalf("signing assertion: %v", err)
	}

	_, err = f.svc.GenerateJWT(context.Background(), Request{KID: "kid-1", JWTToken: signed})
	if !apperror.IsType(err, apperror.TypeInvalidPayload) {
		t.Fatalf("expected invalid_payload for missing jti, got %v", err)
	}
}
