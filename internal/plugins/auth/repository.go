package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// DeviceRepository defines the data access contract for device-trust rows.
type DeviceRepository interface {
	// FindByAccountAndUID returns the device record for (account, uid),
	// or apperror.NotFound when none exists.
	FindByAccountAndUID(ctx context.Context, accountID int64, uid string) (*Device, error)

	// Upsert creates the device row or, when a concurrent sign-in already
	// created one for the same (account, uid), folds the write into an
	// update. The uniqueness constraint on (account_id, uid) makes retried
	// and racing commits converge on a single row.
	Upsert(ctx context.Context, device *Device) error
}

// ApplicationRepository resolves registered relying parties.
type ApplicationRepository interface {
	FindByUID(ctx context.Context, uid string) (*Application, error)
}

// deviceRepository implements DeviceRepository with MariaDB queries.
type deviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a device repository backed by the given DB pool.
func NewDeviceRepository(db *sql.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

// FindByAccountAndUID returns the device record for (account, uid).
func (r *deviceRepository) FindByAccountAndUID(ctx context.Context, accountID int64, uid string) (*Device, error) {
	query := `SELECT id, account_id, uid, last_sign_in_at, check_otp_at, created_at, updated_at
	          FROM devices WHERE account_id = ? AND uid = ?`

	d := &Device{}
	err := r.db.QueryRowContext(ctx, query, accountID, uid).Scan(
		&d.ID, &d.AccountID, &d.UID, &d.LastSignInAt, &d.CheckOTPAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("device not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// deviceUpsertQuery converts a duplicate-key create into an update, so
// concurrent first-time sign-ins from the same (account, uid) converge on
// one row instead of one of them failing. The COALESCE preserves an open
// trust window when the incoming record carries no fresh OTP check.
const deviceUpsertQuery = `INSERT INTO devices (account_id, uid, last_sign_in_at, check_otp_at, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	              last_sign_in_at = VALUES(last_sign_in_at),
	              check_otp_at    = COALESCE(VALUES(check_otp_at), check_otp_at),
	              updated_at      = VALUES(updated_at)`

// Upsert writes the device row. A nil CheckOTPAt in the incoming record
// preserves whatever the existing row holds -- a sign-in without a fresh
// OTP check must not erase an open trust window.
func (r *deviceRepository) Upsert(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, deviceUpsertQuery,
		device.AccountID, device.UID, device.LastSignInAt, device.CheckOTPAt,
		device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		device.ID = id
	}
	return nil
}

// applicationRepository implements ApplicationRepository with MariaDB queries.
type applicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository creates an application repository.
func NewApplicationRepository(db *sql.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// FindByUID resolves a relying party by its public identifier.
func (r *applicationRepository) FindByUID(ctx context.Context, uid string) (*Application, error) {
	query := `SELECT id, uid, name, created_at FROM applications WHERE uid = ?`

	app := &Application{}
	err := r.db.QueryRowContext(ctx, query, uid).Scan(&app.ID, &app.UID, &app.Name, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("application not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying application: %w", err)
	}
	return app, nil
}
