package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	createFn    func(ctx context.Context, kp *Keypair) error
	findByUIDFn func(ctx context.Context, uid string) (*Keypair, error)
	created     []Keypair
	updated     []Keypair
	deleted     []string
}

func (m *mockRepo) Create(ctx context.Context, kp *Keypair) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, kp); err != nil {
			return err
		}
	}
	kp.ID = int64(len(m.created) + 1)
	m.created = append(m.created, *kp)
	return nil
}

func (m *mockRepo) FindByUID(ctx context.Context, uid string) (*Keypair, error) {
	if m.findByUIDFn != nil {
		return m.findByUIDFn(ctx, uid)
	}
	return nil, apperror.NewNotFound("keypair not found")
}

func (m *mockRepo) FindByAccountAndUID(ctx context.Context, accountID int64, uid string) (*Keypair, error) {
	for _, kp := range m.created {
		if kp.AccountID == accountID && kp.UID == uid {
			found := kp
			return &found, nil
		}
	}
	return nil, apperror.NewNotFound("keypair not found")
}

func (m *mockRepo) ListByAccount(ctx context.Context, accountID int64) ([]Keypair, error) {
	var out []Keypair
	for _, kp := range m.created {
		if kp.AccountID == accountID {
			out = append(out, kp)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(ctx context.Context, kp *Keypair) error {
	m.updated = append(m.updated, *kp)
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, accountID int64, uid string) error {
	m.deleted = append(m.deleted, uid)
	return nil
}

// testPublicKeyPEM generates a fresh RSA public key in PKIX PEM form.
func testPublicKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func validCreate(t *testing.T) CreateRequest {
	return CreateRequest{
		Name:      "trading_bot",
		PublicKey: testPublicKeyPEM(t),
		Scopes:    "trade read",
		Lifetime:  3600,
	}
}

func TestCreate_Success(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	kp, err := svc.Create(context.Background(), 7, validCreate(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kp.UID == "" {
		t.Error("expected a generated uid")
	}
	if kp.State != StateActive {
		t.Errorf("expected state %q, got %q", StateActive, kp.State)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.created))
	}
}

func TestCreate_Validation(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	pubKey := testPublicKeyPEM(t)

	cases := []struct {
		name   string
		mutate func(req *CreateRequest)
	}{
		{"name too short", func(r *CreateRequest) { r.Name = "ab" }},
		{"name uppercase", func(r *CreateRequest) { r.Name = "Trading" }},
		{"name too long", func(r *CreateRequest) { r.Name = strings.Repeat("a", 51) }},
		{"lifetime below minimum", func(r *CreateRequest) { r.Lifetime = 9 }},
		{"lifetime above maximum", func(r *CreateRequest) { r.Lifetime = 7201 }},
		{"empty scopes", func(r *CreateRequest) { r.Scopes = "" }},
		{"missing public key", func(r *CreateRequest) { r.PublicKey = "" }},
		{"garbage public key", func(r *CreateRequest) { r.PublicKey = "not a pem" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := CreateRequest{Name: "trading_bot", PublicKey: pubKey, Scopes: "trade", Lifetime: 3600}
			tc.mutate(&req)

			_, err := svc.Create(context.Background(), 7, req)
			if !apperror.IsType(err, apperror.TypeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if len(repo.created) != 0 {
		t.Errorf("no rows should be created on validation failure, got %d", len(repo.created))
	}
}

func TestUpdate_Success(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	kp, err := svc.Create(context.Background(), 7, validCreate(t))
	if err != nil {
		t.Fatalf("creating keypair: %v", err)
	}

	updated, err := svc.Update(context.Background(), 7, kp.UID, UpdateRequest{
		Name:     "renamed_bot",
		Scopes:   "read",
		Lifetime: 600,
		State:    StateDisabled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "renamed_bot" || updated.State != StateDisabled {
		t.Errorf("update not applied: %+v", updated)
	}
	// The public key is immutable through updates.
	if updated.PublicKey != kp.PublicKey {
		t.Error("public key must not change on update")
	}
}

func TestUpdate_WrongOwner(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	kp, err := svc.Create(context.Background(), 7, validCreate(t))
	if err != nil {
		t.Fatalf("creating keypair: %v", err)
	}

	_, err = svc.Update(context.Background(), 8, kp.UID, UpdateRequest{
		Name: "hijack", Scopes: "all", Lifetime: 600, State: StateActive,
	})
	if !apperror.IsType(err, apperror.TypeNotFound) {
		t.Fatalf("expected not_found for another account's keypair, got %v", err)
	}
}

func TestResolve_DisabledKeypair(t *testing.T) {
	repo := &mockRepo{
		findByUIDFn: func(ctx context.Context, uid string) (*Keypair, error) {
			return &Keypair{UID: uid, State: StateDisabled}, nil
		},
	}
	svc := NewService(repo)

	_, err := svc.Resolve(context.Background(), "some-kid")
	if !apperror.IsType(err, apperror.TypeNotFound) {
		t.Fatalf("disabled keypair must resolve like a missing one, got %v", err)
	}
}

func TestParsePublicKey_Formats(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	pkixDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling pkix: %v", err)
	}
	pkix := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkixDER}))
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{
		Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}))

	for name, pemData := range map[string]string{"pkix": pkix, "pkcs1": pkcs1} {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParsePublicKey(pemData)
			if err != nil {
				t.Fatalf("parsing %s key: %v", name, err)
			}
			if parsed.N.Cmp(key.PublicKey.N) != 0 {
				t.Error("parsed key does not match original")
			}
		})
	}
}
