package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Repository defines the data access contract for keypairs.
type Repository interface {
	Create(ctx context.Context, kp *Keypair) error
	FindByUID(ctx context.Context, uid string) (*Keypair, error)
	FindByAccountAndUID(ctx context.Context, accountID int64, uid string) (*Keypair, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Keypair, error)
	Update(ctx context.Context, kp *Keypair) error
	Delete(ctx context.Context, accountID int64, uid string) error
}

// repository implements Repository with MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new keypair repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const keypairColumns = `id, uid, account_id, name, public_key, scopes,
	lifetime, state, created_at, updated_at`

func scanKeypair(scan func(dest ...any) error) (*Keypair, error) {
	kp := &Keypair{}
	err := scan(
		&kp.ID, &kp.UID, &kp.AccountID, &kp.Name, &kp.PublicKey,
		&kp.Scopes, &kp.Lifetime, &kp.State, &kp.CreatedAt, &kp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("keypair not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning keypair: %w", err)
	}
	return kp, nil
}

// Create inserts a new keypair row.
func (r *repository) Create(ctx context.Context, kp *Keypair) error {
	query := `INSERT INTO api_keypairs
	          (uid, account_id, name, public_key, scopes, lifetime, state, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		kp.UID, kp.AccountID, kp.Name, kp.PublicKey, kp.Scopes,
		kp.Lifetime, kp.State, kp.CreatedAt, kp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting keypair: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading keypair insert id: %w", err)
	}
	kp.ID = id
	return nil
}

// FindByUID resolves a keypair by its uid regardless of owner. Used by the
// exchange, where the caller presents only the kid.
func (r *repository) FindByUID(ctx context.Context, uid string) (*Keypair, error) {
	query := `SELECT ` + keypairColumns + ` FROM api_keypairs WHERE uid = ?`
	row := r.db.QueryRowContext(ctx, query, uid)
	return scanKeypair(row.Scan)
}

// FindByAccountAndUID resolves a keypair scoped to its owner. Used by the
// CRUD surface so accounts can only see their own keys.
func (r *repository) FindByAccountAndUID(ctx context.Context, accountID int64, uid string) (*Keypair, error) {
	query := `SELECT ` + keypairColumns + ` FROM api_keypairs WHERE account_id = ? AND uid = ?`
	row := r.db.QueryRowContext(ctx, query, accountID, uid)
	return scanKeypair(row.Scan)
}

// ListByAccount returns all keypairs owned by the account, newest first.
func (r *repository) ListByAccount(ctx context.Context, accountID int64) ([]Keypair, error) {
	query := `SELECT ` + keypairColumns + ` FROM api_keypairs
	          WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing keypairs: %w", err)
	}
	defer rows.Close()

	var keypairs []Keypair
	for rows.Next() {
		kp, err := scanKeypair(rows.Scan)
		if err != nil {
			return nil, err
		}
		keypairs = append(keypairs, *kp)
	}
	return keypairs, rows.Err()
}

// Update writes the mutable fields of a keypair.
func (r *repository) Update(ctx context.Context, kp *Keypair) error {
	query := `UPDATE api_keypairs
	          SET name = ?, scopes = ?, lifetime = ?, state = ?, updated_at = ?
	          WHERE account_id = ? AND uid = ?`

	result, err := r.db.ExecContext(ctx, query,
		kp.Name, kp.Scopes, kp.Lifetime, kp.State, kp.UpdatedAt,
		kp.AccountID, kp.UID,
	)
	if err != nil {
		return fmt.Errorf("updating keypair: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading keypair update result: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("keypair not found")
	}
	return nil
}

// Delete removes a keypair owned by the account.
func (r *repository) Delete(ctx context.Context, accountID int64, uid string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM api_keypairs WHERE account_id = ? AND uid = ?`,
		accountID, uid,
	)
	if err != nil {
		return fmt.Errorf("deleting keypair: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading keypair delete result: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("keypair not found")
	}
	return nil
}
