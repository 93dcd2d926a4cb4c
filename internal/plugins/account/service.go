package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/secretstore"
)

// Token lifetimes. Confirmation and unlock links are emailed and may sit in
// an inbox for a while; reset links are deliberately short-lived.
const (
	confirmTokenTTL = 24 * time.Hour
	unlockTokenTTL  = 24 * time.Hour
	resetTokenTTL   = 1 * time.Hour
)

// MailSender delivers account lifecycle emails. When no sender is
// configured, tokens are logged instead so local development works without
// an SMTP relay.
type MailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// Service defines the business logic contract for account management.
// Handlers call these methods -- they never touch the repository directly.
type Service interface {
	Register(ctx context.Context, input RegisterRequest) (*Account, error)
	Confirm(ctx context.Context, token string) error
	SendConfirmationInstructions(ctx context.Context, email string) error
	Unlock(ctx context.Context, token string) error
	SendUnlockInstructions(ctx context.Context, email string) error

	ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error
	InitiatePasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error

	EnableOTP(ctx context.Context, accountID int64) error
	DisableOTP(ctx context.Context, accountID int64, code string) error

	Get(ctx context.Context, accountID int64) (*Account, error)
}

// service implements Service.
type service struct {
	repo    Repository
	secrets secretstore.SecretStore
	mail    MailSender
	baseURL string
}

// NewService creates a new account service. mail may be nil.
func NewService(repo Repository, secrets secretstore.SecretStore, mail MailSender, baseURL string) Service {
	return &service{repo: repo, secrets: secrets, mail: mail, baseURL: baseURL}
}

// Register creates a new pending account. It validates uniqueness, hashes
// the password with argon2id, and issues a confirmation token.
func (s *service) Register(ctx context.Context, input RegisterRequest) (*Account, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperror.NewValidation("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	// Check uniqueness before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	acct := &Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		State:        StatePending,
		Role:         RoleMember,
		Level:        0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating account: %w", err))
	}

	if err := s.issueToken(ctx, acct, TokenKindConfirm, confirmTokenTTL,
		"Confirm your Gatehouse account"); err != nil {
		// The account exists; the caller can re-request instructions.
		slog.Warn("failed to issue confirmation token",
			slog.String("account_uid", acct.UID),
			slog.Any("error", err),
		)
	}

	slog.Info("account registered",
		slog.String("account_uid", acct.UID),
		slog.String("email", acct.Email),
	)

	return acct, nil
}

// Confirm activates a pending account using an emailed token.
func (s *service) Confirm(ctx context.Context, token string) error {
	accountID, err := s.consumeToken(ctx, TokenKindConfirm, token)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateState(ctx, accountID, StateActive); err != nil {
		return apperror.NewInternal(fmt.Errorf("activating account: %w", err))
	}

	slog.Info("account confirmed", slog.Int64("account_id", accountID))
	return nil
}

// SendConfirmationInstructions re-issues a confirmation token. Always
// reports success to the caller so email existence cannot be probed.
func (s *service) SendConfirmationInstructions(ctx context.Context, email string) error {
	acct, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil
	}
	if acct.Active() {
		return nil
	}
	return s.issueToken(ctx, acct, TokenKindConfirm, confirmTokenTTL,
		"Confirm your Gatehouse account")
}

// Unlock clears an administrative lock using an emailed token.
func (s *service) Unlock(ctx context.Context, token string) error {
	accountID, err := s.consumeToken(ctx, TokenKindUnlock, token)
	if err != nil {
		return err
	}

	if err := s.repo.ClearLock(ctx, accountID); err != nil {
		return apperror.NewInternal(fmt.Errorf("unlocking account: %w", err))
	}

	slog.Info("account unlocked", slog.Int64("account_id", accountID))
	return nil
}

// SendUnlockInstructions issues an unlock token for a locked account.
// Always reports success so email existence cannot be probed.
func (s *service) SendUnlockInstructions(ctx context.Context, email string) error {
	acct, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil
	}
	if !acct.Locked() {
		return nil
	}
	return s.issueToken(ctx, acct, TokenKindUnlock, unlockTokenTTL,
		"Unlock your Gatehouse account")
}

// ChangePassword verifies the current password then stores a new hash.
func (s *service) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	acct, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return apperror.NewUnauthorized("invalid password")
	}

	if !VerifyPassword(oldPassword, acct.PasswordHash) {
		return apperror.NewUnauthorized("invalid password")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, accountID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password changed", slog.Int64("account_id", accountID))
	return nil
}

// InitiatePasswordReset issues a reset token. Always reports success so
// email existence cannot be probed.
func (s *service) InitiatePasswordReset(ctx context.Context, email string) error {
	acct, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil
	}
	return s.issueToken(ctx, acct, TokenKindReset, resetTokenTTL,
		"Reset your Gatehouse password")
}

// ResetPassword consumes a reset token and stores a new password hash.
func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	accountID, err := s.consumeToken(ctx, TokenKindReset, token)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, accountID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password reset", slog.Int64("account_id", accountID))
	return nil
}

// EnableOTP enrolls the account's TOTP secret in the secret store and flips
// the flag. Enrollment is safe-create: re-enabling never rotates an
// existing secret out from under an authenticator app.
func (s *service) EnableOTP(ctx context.Context, accountID int64) error {
	acct, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := secretstore.SafeCreate(ctx, s.secrets, acct.UID, acct.Email); err != nil {
		return apperror.NewInternal(fmt.Errorf("creating otp secret: %w", err))
	}
	if err := s.repo.SetOTPEnabled(ctx, accountID, true); err != nil {
		return apperror.NewInternal(fmt.Errorf("enabling otp: %w", err))
	}

	slog.Info("otp enabled", slog.String("account_uid", acct.UID))
	return nil
}

// DisableOTP turns off the second factor after verifying a current code.
// An unreachable secret store fails the check, leaving 2FA on.
func (s *service) DisableOTP(ctx context.Context, accountID int64, code string) error {
	acct, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.OTPEnabled {
		return apperror.NewBadRequest("2fa is not enabled")
	}
	if code == "" {
		return apperror.NewOTPMissing()
	}

	valid, err := s.secrets.Validate(ctx, acct.UID, code)
	if err != nil || !valid {
		return apperror.NewOTPInvalid()
	}

	if err := s.repo.SetOTPEnabled(ctx, accountID, false); err != nil {
		return apperror.NewInternal(fmt.Errorf("disabling otp: %w", err))
	}

	slog.Info("otp disabled", slog.String("account_uid", acct.UID))
	return nil
}

// Get returns the account by id.
func (s *service) Get(ctx context.Context, accountID int64) (*Account, error) {
	return s.repo.FindByID(ctx, accountID)
}

// --- Helpers ---

// issueToken generates, stores, and delivers a one-time token.
func (s *service) issueToken(ctx context.Context, acct *Account, kind string, ttl time.Duration, subject string) error {
	token, err := generateToken()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("generating %s token: %w", kind, err))
	}

	expiresAt := time.Now().UTC().Add(ttl)
	if err := s.repo.CreateToken(ctx, kind, acct.ID, hashToken(token), expiresAt); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing %s token: %w", kind, err))
	}

	link := fmt.Sprintf("%s/%s?token=%s", strings.TrimRight(s.baseURL, "/"), kind, token)
	if s.mail == nil {
		// No mail relay configured -- log the link for local development.
		slog.Info("mail sender not configured, token link not delivered",
			slog.String("kind", kind),
			slog.String("email", acct.Email),
			slog.String("link", link),
		)
		return nil
	}

	body := fmt.Sprintf("Follow this link to continue: %s\nThe link expires in %s.", link, ttl)
	if err := s.mail.SendMail(ctx, []string{acct.Email}, subject, body); err != nil {
		slog.Error("failed to send account email",
			slog.String("kind", kind),
			slog.String("email", acct.Email),
			slog.Any("error", err),
		)
	}
	return nil
}

// consumeToken validates a one-time token and marks it used.
func (s *service) consumeToken(ctx context.Context, kind, token string) (int64, error) {
	if token == "" {
		return 0, apperror.NewBadRequest("token is required")
	}

	tokenHash := hashToken(token)
	accountID, expiresAt, usedAt, err := s.repo.FindToken(ctx, kind, tokenHash)
	if err != nil {
		return 0, apperror.NewBadRequest("invalid or expired token")
	}
	if usedAt != nil {
		return 0, apperror.NewBadRequest("token has already been used")
	}
	if time.Now().After(expiresAt) {
		return 0, apperror.NewBadRequest("invalid or expired token")
	}

	if err := s.repo.MarkTokenUsed(ctx, kind, tokenHash); err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("marking %s token used: %w", kind, err))
	}
	return accountID, nil
}

// NormalizeEmail lower-cases and trims an email address. Stored emails are
// always normalized, so every lookup (including the sign-in path in
// internal/plugins/auth) must normalize the same way for exact matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validatePassword enforces the password policy shared by registration,
// change, and reset.
func validatePassword(password string) error {
	if password == "" {
		return apperror.NewValidation("password is required")
	}
	if len(password) < 8 {
		return apperror.NewValidation("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return apperror.NewValidation("password must be at most 128 characters")
	}
	return nil
}
