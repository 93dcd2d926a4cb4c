package apikeys

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// namePattern validates keypair names: lowercase letters, digits,
// underscore and hyphen, 3 to 50 characters.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{3,50}$`)

// Service handles business logic for keypair management.
type Service interface {
	Create(ctx context.Context, accountID int64, req CreateRequest) (*Keypair, error)
	Get(ctx context.Context, accountID int64, uid string) (*Keypair, error)
	List(ctx context.Context, accountID int64) ([]Keypair, error)
	Update(ctx context.Context, accountID int64, uid string, req UpdateRequest) (*Keypair, error)
	Delete(ctx context.Context, accountID int64, uid string) error

	// Resolve looks up an active keypair by kid for the exchange. Owner
	// scoping does not apply: the exchange caller presents only the kid.
	Resolve(ctx context.Context, kid string) (*Keypair, error)
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new keypair service with the given repository.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Create validates and registers a new keypair for the account.
func (s *service) Create(ctx context.Context, accountID int64, req CreateRequest) (*Keypair, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if err := validateLifetime(req.Lifetime); err != nil {
		return nil, err
	}
	if req.Scopes == "" {
		return nil, apperror.NewValidation("scopes are required")
	}
	if err := validatePublicKey(req.PublicKey); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	kp := &Keypair{
		UID:       uuid.NewString(),
		AccountID: accountID,
		Name:      req.Name,
		PublicKey: req.PublicKey,
		Scopes:    req.Scopes,
		Lifetime:  req.Lifetime,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, kp); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating keypair: %w", err))
	}
	return kp, nil
}

// Get returns one of the account's keypairs.
func (s *service) Get(ctx context.Context, accountID int64, uid string) (*Keypair, error) {
	return s.repo.FindByAccountAndUID(ctx, accountID, uid)
}

// List returns all keypairs owned by the account.
func (s *service) List(ctx context.Context, accountID int64) ([]Keypair, error) {
	keypairs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing keypairs: %w", err))
	}
	return keypairs, nil
}

// Update modifies a keypair's mutable fields.
func (s *service) Update(ctx context.Context, accountID int64, uid string, req UpdateRequest) (*Keypair, error) {
	kp, err := s.repo.FindByAccountAndUID(ctx, accountID, uid)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if err := validateLifetime(req.Lifetime); err != nil {
		return nil, err
	}
	if req.Scopes == "" {
		return nil, apperror.NewValidation("scopes are required")
	}
	if req.State != StateActive && req.State != StateDisabled {
		return nil, apperror.NewValidation("state must be active or disabled")
	}

	kp.Name = req.Name
	kp.Scopes = req.Scopes
	kp.Lifetime = req.Lifetime
	kp.State = req.State
	kp.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Delete removes a keypair owned by the account.
func (s *service) Delete(ctx context.Context, accountID int64, uid string) error {
	return s.repo.Delete(ctx, accountID, uid)
}

// Resolve returns the active keypair registered under kid. Disabled and
// unknown keypairs are indistinguishable to the caller.
func (s *service) Resolve(ctx context.Context, kid string) (*Keypair, error) {
	kp, err := s.repo.FindByUID(ctx, kid)
	if err != nil {
		return nil, err
	}
	if !kp.Active() {
		return nil, apperror.NewNotFound("keypair not found")
	}
	return kp, nil
}

// ParsePublicKey decodes a keypair's PEM-encoded RSA public key. Accepts
// both PKIX ("PUBLIC KEY") and PKCS1 ("RSA PUBLIC KEY") blocks.
func ParsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return key, nil
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return apperror.NewValidation("name must be 3-50 characters of a-z, 0-9, _ or -")
	}
	return nil
}

func validateLifetime(lifetime int) error {
	if lifetime < MinLifetime || lifetime > MaxLifetime {
		return apperror.NewValidation(
			fmt.Sprintf("lifetime must be between %d and %d seconds", MinLifetime, MaxLifetime))
	}
	return nil
}

func validatePublicKey(pemData string) error {
	if pemData == "" {
		return apperror.NewValidation("public_key is required")
	}
	if _, err := ParsePublicKey(pemData); err != nil {
		return apperror.NewValidation("public_key must be a PEM-encoded RSA public key")
	}
	return nil
}
