package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Repository defines the data access contract for account operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
//
// Lookup methods only see kept accounts (discarded_at IS NULL); a soft-
// deleted account is indistinguishable from a missing one.
type Repository interface {
	Create(ctx context.Context, acct *Account) error
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByUID(ctx context.Context, uid string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	UpdateState(ctx context.Context, id int64, state string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetOTPEnabled(ctx context.Context, id int64, enabled bool) error
	ClearLock(ctx context.Context, id int64) error

	// One-time tokens (confirmation, unlock, password reset). The kind
	// namespaces each token; tokenHash is SHA-256(plaintext).
	CreateToken(ctx context.Context, kind string, accountID int64, tokenHash string, expiresAt time.Time) error
	FindToken(ctx context.Context, kind, tokenHash string) (accountID int64, expiresAt time.Time, usedAt *time.Time, err error)
	MarkTokenUsed(ctx context.Context, kind, tokenHash string) error
}

// repository implements Repository with hand-written MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new account repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const accountColumns = `id, uid, email, password_hash, state, role, level,
	otp_enabled, discarded_at, locked_at, created_at, updated_at`

// scanAccount scans one account row.
func scanAccount(row *sql.Row) (*Account, error) {
	acct := &Account{}
	err := row.Scan(
		&acct.ID, &acct.UID, &acct.Email, &acct.PasswordHash,
		&acct.State, &acct.Role, &acct.Level, &acct.OTPEnabled,
		&acct.DiscardedAt, &acct.LockedAt, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return acct, nil
}

// Create inserts a new account row.
func (r *repository) Create(ctx context.Context, acct *Account) error {
	query := `INSERT INTO accounts (uid, email, password_hash, state, role, level, otp_enabled, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		acct.UID, acct.Email, acct.PasswordHash, acct.State,
		acct.Role, acct.Level, acct.OTPEnabled,
		acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting account id: %w", err)
	}
	acct.ID = id

	return nil
}

// FindByID retrieves a kept account by primary key.
func (r *repository) FindByID(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND discarded_at IS NULL`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// FindByUID retrieves a kept account by its public uid.
func (r *repository) FindByUID(ctx context.Context, uid string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE uid = ? AND discarded_at IS NULL`
	return scanAccount(r.db.QueryRowContext(ctx, query, uid))
}

// FindByEmail retrieves a kept account by email. The match is exact on the
// stored key; emails are normalized to lower case before storage.
func (r *repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ? AND discarded_at IS NULL`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// EmailExists returns true if a kept account with the given email exists.
// Used during registration to check for duplicates before hashing.
func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ? AND discarded_at IS NULL)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// UpdateState transitions the account lifecycle state.
func (r *repository) UpdateState(ctx context.Context, id int64, state string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET state = ?, updated_at = NOW() WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("updating account state: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("account not found")
	}
	return nil
}

// UpdatePassword sets a new password hash.
func (r *repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = NOW() WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("account not found")
	}
	return nil
}

// SetOTPEnabled flips the second-factor flag.
func (r *repository) SetOTPEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET otp_enabled = ?, updated_at = NOW() WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("updating otp_enabled: %w", err)
	}
	return nil
}

// ClearLock removes an administrative lock.
func (r *repository) ClearLock(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET locked_at = NULL, updated_at = NOW() WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clearing account lock: %w", err)
	}
	return nil
}

// --- One-time tokens ---

// CreateToken inserts a new one-time token row.
func (r *repository) CreateToken(ctx context.Context, kind string, accountID int64, tokenHash string, expiresAt time.Time) error {
	query := `INSERT INTO account_tokens (account_id, kind, token_hash, expires_at)
	          VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, accountID, kind, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("creating %s token: %w", kind, err)
	}
	return nil
}

// FindToken looks up a token by kind and hash.
func (r *repository) FindToken(ctx context.Context, kind, tokenHash string) (int64, time.Time, *time.Time, error) {
	query := `SELECT account_id, expires_at, used_at
	          FROM account_tokens WHERE kind = ? AND token_hash = ?`

	var accountID int64
	var expiresAt time.Time
	var usedAt *time.Time
	err := r.db.QueryRowContext(ctx, query, kind, tokenHash).Scan(&accountID, &expiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil, apperror.NewNotFound("invalid or expired token")
	}
	if err != nil {
		return 0, time.Time{}, nil, fmt.Errorf("finding %s token: %w", kind, err)
	}
	return accountID, expiresAt, usedAt, nil
}

// MarkTokenUsed stamps the used_at column so the token can't be replayed.
func (r *repository) MarkTokenUsed(ctx context.Context, kind, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE account_tokens SET used_at = NOW() WHERE kind = ? AND token_hash = ?`, kind, tokenHash)
	if err != nil {
		return fmt.Errorf("marking %s token used: %w", kind, err)
	}
	return nil
}
