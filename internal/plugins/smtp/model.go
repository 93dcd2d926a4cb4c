// Package smtp provides outbound email delivery for account lifecycle
// messages (confirmation, unlock, password reset links). SMTP settings are
// stored in the database and managed by site admins. The encrypted password
// is NEVER returned to the API -- only a boolean indicating whether a
// password is configured.
package smtp

import "time"

// SMTPSettings is the configuration shape the service and handlers expose.
// The password never appears here; HasPassword reports whether one is set.
type SMTPSettings struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	HasPassword bool      `json:"has_password"` // True if encrypted password exists.
	FromAddress string    `json:"from_address"`
	FromName    string    `json:"from_name"`
	Encryption  string    `json:"encryption"` // See the Encryption* constants.
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// smtpRow is the raw database row including the sealed password bytes.
// It never leaves this package.
type smtpRow struct {
	Host              string
	Port              int
	Username          string
	PasswordEncrypted []byte // AES-256-GCM encrypted, nil if not set.
	FromAddress       string
	FromName          string
	Encryption        string
	Enabled           bool
	UpdatedAt         time.Time
}

// toSettings redacts the row for callers outside the send path.
func (r *smtpRow) toSettings() *SMTPSettings {
	return &SMTPSettings{
		Host:        r.Host,
		Port:        r.Port,
		Username:    r.Username,
		HasPassword: len(r.PasswordEncrypted) > 0,
		FromAddress: r.FromAddress,
		FromName:    r.FromName,
		Encryption:  r.Encryption,
		Enabled:     r.Enabled,
		UpdatedAt:   r.UpdatedAt,
	}
}

// UpdateSMTPRequest is the admin update payload. An empty password keeps
// the stored one so admins can edit other fields without re-entering it.
type UpdateSMTPRequest struct {
	Host        string `json:"host" form:"host"`
	Port        int    `json:"port" form:"port"`
	Username    string `json:"username" form:"username"`
	Password    string `json:"password" form:"password"` // Empty = keep existing.
	FromAddress string `json:"from_address" form:"from_address"`
	FromName    string `json:"from_name" form:"from_name"`
	Encryption  string `json:"encryption" form:"encryption"`
	Enabled     bool   `json:"enabled" form:"enabled"`
}

