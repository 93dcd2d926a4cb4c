package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouseid/gatehouse/internal/apperror"
	"github.com/gatehouseid/gatehouse/internal/config"
	"github.com/gatehouseid/gatehouse/internal/plugins/account"
	"github.com/gatehouseid/gatehouse/internal/plugins/audit"
	"github.com/gatehouseid/gatehouse/internal/secretstore"
)

// Service is the sign-in decision pipeline.
type Service interface {
	// SignIn runs one authentication attempt end to end. Every terminal
	// outcome, success or failure, leaves exactly one audit row before
	// the result is returned.
	SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error)
}

// service implements Service.
type service struct {
	accounts     account.Repository
	devices      DeviceRepository
	applications ApplicationRepository
	secrets      secretstore.SecretStore
	auditor      audit.Service
	issuer       *Issuer
	trustWindow  time.Duration
	now          func() time.Time
}

// NewService wires the sign-in pipeline.
func NewService(
	accounts account.Repository,
	devices DeviceRepository,
	applications ApplicationRepository,
	secrets secretstore.SecretStore,
	auditor audit.Service,
	issuer *Issuer,
	cfg config.AuthConfig,
) Service {
	return &service{
		accounts:     accounts,
		devices:      devices,
		applications: applications,
		secrets:      secrets,
		auditor:      auditor,
		issuer:       issuer,
		trustWindow:  cfg.DeviceTrustWindow,
		now:          time.Now,
	}
}

// signInState carries the attempt's resolved entities between pipeline
// steps. Built fresh per call; never shared.
type signInState struct {
	account    *account.Account
	app        *Application
	device     *Device
	otpChecked bool
}

// SignIn runs the pipeline: credentials, application, second factor, device
// commit, audit, token. Steps run strictly in that order so a caller who
// fails an earlier gate learns nothing about later ones.
func (s *service) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	st := &signInState{}

	if err := s.validateCredentials(ctx, req, st); err != nil {
		return nil, err
	}
	if err := s.resolveApplication(ctx, req, st); err != nil {
		return nil, err
	}
	s.loadDevice(ctx, req, st)

	if s.requiresSecondFactor(st) {
		if err := s.verifyOTP(ctx, req, st); err != nil {
			return nil, err
		}
	}

	newDeviceUID, err := s.commitDevice(ctx, req, st)
	if err != nil {
		return nil, err
	}

	if err := s.auditor.Record(ctx, &st.account.ID, audit.ActionLogin, audit.StatusSucceed, req.Meta); err != nil {
		return nil, err
	}

	token, err := s.issuer.Issue(ctx, st.account, st.app.UID, req.ExpiresIn)
	if err != nil {
		slog.Error("failed to issue access token",
			slog.String("account_uid", st.account.UID),
			slog.Any("error", err),
		)
		return nil, apperror.NewInternal(err)
	}

	return &SignInResult{Token: token, NewDeviceUID: newDeviceUID}, nil
}

// fail records the failure's audit row and returns the auth error. If the
// audit write itself fails, that failure supersedes: a rejection without a
// trail row must not leave the server either.
func (s *service) fail(ctx context.Context, st *signInState, status string, meta audit.Metadata, authErr error) error {
	var accountID *int64
	if st.account != nil {
		accountID = &st.account.ID
	}
	if err := s.auditor.Record(ctx, accountID, audit.ActionLogin, status, meta); err != nil {
		return err
	}
	return authErr
}

// validateCredentials resolves the account and checks the password. Unknown
// email, wrong password, and soft-deleted account all fail with the same
// message and timing-equivalent work so none of them can be told apart.
func (s *service) validateCredentials(ctx context.Context, req SignInRequest, st *signInState) error {
	// Stored emails are normalized at registration; match the same form so
	// the lookup does not lean on the collation being case-insensitive.
	acct, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(req.Email))
	if err != nil {
		// Burn a hash comparison so the miss costs as much as a match.
		account.VerifyPassword(req.Password, dummyHash)
		return s.fail(ctx, st, audit.StatusInvalidCredentials, req.Meta, apperror.NewInvalidCredentials())
	}
	st.account = acct

	if !account.VerifyPassword(req.Password, acct.PasswordHash) {
		return s.fail(ctx, st, audit.StatusInvalidCredentials, req.Meta, apperror.NewInvalidCredentials())
	}

	if acct.Locked() {
		return s.fail(ctx, st, audit.StatusError, req.Meta, apperror.NewUnauthorized("your account is locked"))
	}
	if !acct.Active() {
		return s.fail(ctx, st, audit.StatusNotConfirmed, req.Meta, apperror.NewAccountNotConfirmed())
	}
	return nil
}

// dummyHash keeps the credential check constant-work when no account
// matches the submitted email. Hash of an unguessable random string.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=4$c29tZXNhbHRzb21lc2FsdA$RdescudvJCsgt3ub+b+dWRWJTmaaJObG"

// resolveApplication checks the relying party is registered.
func (s *service) resolveApplication(ctx context.Context, req SignInRequest, st *signInState) error {
	app, err := s.applications.FindByUID(ctx, req.ApplicationID)
	if err != nil {
		return s.fail(ctx, st, audit.StatusUnknownApplication, req.Meta, apperror.NewUnknownApplication())
	}
	st.app = app
	return nil
}

// loadDevice reads the caller's device-trust record, if any. A lookup
// failure is treated as "no trusted device", which can only make the
// pipeline stricter.
func (s *service) loadDevice(ctx context.Context, req SignInRequest, st *signInState) {
	if req.DeviceUID == "" {
		return
	}
	device, err := s.devices.FindByAccountAndUID(ctx, st.account.ID, req.DeviceUID)
	if err != nil {
		if !apperror.IsType(err, apperror.TypeNotFound) {
			slog.Warn("device lookup failed, treating as untrusted",
				slog.String("account_uid", st.account.UID),
				slog.Any("error", err),
			)
		}
		return
	}
	st.device = device
}

// requiresSecondFactor decides whether this attempt owes an OTP. Accounts
// without OTP enrollment never do. Enrolled accounts skip the challenge only
// inside an open device trust window.
func (s *service) requiresSecondFactor(st *signInState) bool {
	if !st.account.OTPEnabled {
		return false
	}
	if st.device == nil || st.device.CheckOTPAt == nil {
		return true
	}
	return s.now().After(*st.device.CheckOTPAt)
}

// verifyOTP enforces the second factor. A missing code and a wrong code are
// distinct outcomes with distinct audit statuses. Any secret-store error
// reads as "cannot verify", never as "verified".
func (s *service) verifyOTP(ctx context.Context, req SignInRequest, st *signInState) error {
	if req.OTPCode == "" {
		return s.fail(ctx, st, audit.StatusMissingOTP, req.Meta, apperror.NewOTPMissing())
	}

	ok, err := s.secrets.Validate(ctx, st.account.UID, req.OTPCode)
	if err != nil {
		slog.Warn("otp validation unavailable",
			slog.String("account_uid", st.account.UID),
			slog.Any("error", err),
		)
		return s.fail(ctx, st, audit.StatusInvalidOTP, req.Meta, apperror.NewOTPInvalid())
	}
	if !ok {
		return s.fail(ctx, st, audit.StatusInvalidOTP, req.Meta, apperror.NewOTPInvalid())
	}

	st.otpChecked = true
	return nil
}

// commitDevice persists the attempt's device-trust outcome. An existing
// device gets its last-sign-in refreshed, and a new trust window only when
// an OTP was actually checked this attempt. Without an existing device, a
// row is created only when the caller asked to be remembered. Returns the
// freshly minted device uid when one was created.
func (s *service) commitDevice(ctx context.Context, req SignInRequest, st *signInState) (string, error) {
	now := s.now().UTC()

	switch {
	case st.device != nil:
		st.device.LastSignInAt = now
		if st.otpChecked {
			expiry := now.Add(s.trustWindow)
			st.device.CheckOTPAt = &expiry
		} else {
			// The upsert preserves an open window when we pass nil.
			st.device.CheckOTPAt = nil
		}
		st.device.UpdatedAt = now
		if err := s.devices.Upsert(ctx, st.device); err != nil {
			return "", s.fail(ctx, st, audit.StatusError, req.Meta,
				apperror.NewInternal(fmt.Errorf("updating device: %w", err)))
		}
		return "", nil

	case req.RememberMe:
		device := &Device{
			AccountID:    st.account.ID,
			UID:          uuid.NewString(),
			LastSignInAt: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if st.otpChecked {
			expiry := now.Add(s.trustWindow)
			device.CheckOTPAt = &expiry
		}
		if err := s.devices.Upsert(ctx, device); err != nil {
			return "", s.fail(ctx, st, audit.StatusError, req.Meta,
				apperror.NewInternal(fmt.Errorf("creating device: %w", err)))
		}
		return device.UID, nil

	default:
		return "", nil
	}
}
