package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the data access contract for the audit trail.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type Repository interface {
	// Insert appends a new entry. Entries are write-once; there is no
	// update or delete counterpart by design.
	Insert(ctx context.Context, entry *Entry) error

	// ListByAccount returns the most recent entries for an account,
	// newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Entry, error)

	// CountByAccount returns the total number of entries for an account.
	CountByAccount(ctx context.Context, accountID int64) (int, error)
}

// repository implements Repository with MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Insert appends a new device-activity row.
func (r *repository) Insert(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO device_activity
	          (account_id, action, status, user_ip, user_agent, user_os, user_browser, country, device_uid, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.AccountID, entry.Action, entry.Status,
		nullable(entry.Metadata.UserIP), nullable(entry.Metadata.UserAgent),
		nullable(entry.Metadata.UserOS), nullable(entry.Metadata.UserBrowser),
		nullable(entry.Metadata.Country), nullable(entry.Metadata.DeviceUID),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting device activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting device activity id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByAccount returns the most recent entries for an account, newest first.
func (r *repository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
	query := `SELECT id, account_id, action, status,
	                 user_ip, user_agent, user_os, user_browser, country, device_uid,
	                 created_at
	          FROM device_activity
	          WHERE account_id = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing device activity: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ip, agent, os, browser, country, deviceUID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.Action, &e.Status,
			&ip, &agent, &os, &browser, &country, &deviceUID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning device activity row: %w", err)
		}
		e.Metadata = Metadata{
			UserIP:      ip.String,
			UserAgent:   agent.String,
			UserOS:      os.String,
			UserBrowser: browser.String,
			Country:     country.String,
			DeviceUID:   deviceUID.String,
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device activity rows: %w", err)
	}

	return entries, nil
}

// CountByAccount returns the total number of entries for an account.
func (r *repository) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM device_activity WHERE account_id = ?`, accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting device activity: %w", err)
	}
	return count, nil
}

// nullable converts an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
