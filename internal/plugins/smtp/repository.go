package smtp

import (
	"context"
	"database/sql"
	"fmt"
)

// settingsColumns is the scan order shared by every query in this file.
const settingsColumns = `host, port, username, password_encrypted, from_address,
	from_name, encryption, enabled, updated_at`

// SMTPRepository persists the SMTP configuration. The table holds exactly
// one row (id=1, seeded by migration); every operation targets it.
type SMTPRepository interface {
	// Get returns the settings row including the encrypted password bytes.
	Get(ctx context.Context) (*smtpRow, error)

	// Upsert replaces the settings row.
	Upsert(ctx context.Context, row *smtpRow) error
}

type repository struct {
	db *sql.DB
}

// NewSMTPRepository creates the MariaDB-backed settings repository.
func NewSMTPRepository(db *sql.DB) SMTPRepository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context) (*smtpRow, error) {
	query := `SELECT ` + settingsColumns + ` FROM smtp_settings WHERE id = 1`

	row := &smtpRow{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&row.Host, &row.Port, &row.Username, &row.PasswordEncrypted,
		&row.FromAddress, &row.FromName, &row.Encryption, &row.Enabled,
		&row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying smtp settings: %w", err)
	}
	return row, nil
}

func (r *repository) Upsert(ctx context.Context, row *smtpRow) error {
	query := `INSERT INTO smtp_settings (id, host, port, username, password_encrypted,
	                                     from_address, from_name, encryption, enabled)
	          VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	              host = VALUES(host),
	              port = VALUES(port),
	              username = VALUES(username),
	              password_encrypted = VALUES(password_encrypted),
	              from_address = VALUES(from_address),
	              from_name = VALUES(from_name),
	              encryption = VALUES(encryption),
	              enabled = VALUES(enabled)`

	_, err := r.db.ExecContext(ctx, query,
		row.Host, row.Port, row.Username, row.PasswordEncrypted,
		row.FromAddress, row.FromName, row.Encryption, row.Enabled,
	)
	if err != nil {
		return fmt.Errorf("upserting smtp settings: %w", err)
	}
	return nil
}
