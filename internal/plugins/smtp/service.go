package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// Encryption modes accepted in smtp_settings.encryption.
const (
	EncryptionStartTLS = "starttls"
	EncryptionSSL      = "ssl"
	EncryptionNone     = "none"
)

const dialTimeout = 10 * time.Second

// MailService is the interface other plugins use to send email. The
// account plugin delivers confirmation, unlock, and reset links through it.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
	IsConfigured(ctx context.Context) bool
}

// SMTPService extends MailService with admin settings management.
type SMTPService interface {
	MailService

	// GetSettings returns the SMTP configuration (password redacted).
	GetSettings(ctx context.Context) (*SMTPSettings, error)

	// UpdateSettings saves new SMTP settings. Empty password keeps existing.
	UpdateSettings(ctx context.Context, req UpdateSMTPRequest) error

	// TestConnection dials and authenticates without sending a message.
	TestConnection(ctx context.Context) error
}

type service struct {
	repo   SMTPRepository
	secret string // Application secret key for password encryption.
}

// NewSMTPService creates the SMTP service backed by the settings repository.
func NewSMTPService(repo SMTPRepository, secretKey string) SMTPService {
	return &service{repo: repo, secret: secretKey}
}

// IsConfigured returns true if SMTP is enabled and has a host configured.
// The account plugin checks this to decide between delivering a link and
// logging it for local development.
func (s *service) IsConfigured(ctx context.Context) bool {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return false
	}
	return row.Enabled && row.Host != ""
}

// SendMail delivers a plain-text message using the stored settings. The
// password is decrypted at send time, never cached.
func (s *service) SendMail(ctx context.Context, to []string, subject, body string) error {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading smtp settings: %w", err))
	}
	if !row.Enabled || row.Host == "" {
		return apperror.NewBadRequest("SMTP is not configured")
	}

	password, err := s.decryptPassword(row)
	if err != nil {
		return err
	}

	from := mail.Address{Name: row.FromName, Address: row.FromAddress}
	msg := buildMessage(from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", row.Host, row.Port)

	if row.Encryption == EncryptionNone {
		// Plain delivery without a handshake we control; net/smtp's
		// SendMail covers it.
		var auth gosmtp.Auth
		if row.Username != "" {
			auth = gosmtp.PlainAuth("", row.Username, password, row.Host)
		}
		if err := gosmtp.SendMail(addr, auth, from.Address, to, []byte(msg)); err != nil {
			return fmt.Errorf("sending mail: %w", err)
		}
		return nil
	}

	client, err := s.connect(addr, row.Host, row.Username, password, row.Encryption)
	if err != nil {
		return err
	}
	defer client.Close()

	return transmit(client, from.Address, to, msg)
}

// buildMessage assembles an RFC 2822 plain-text message. The subject is
// stripped of CR and LF so untrusted input can never inject extra headers.
func buildMessage(from mail.Address, to []string, subject, body string) string {
	subject = strings.NewReplacer("\r", "", "\n", "").Replace(subject)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

// connect dials the server, negotiates TLS per the configured mode, and
// authenticates when a username is set. The caller owns the returned client.
func (s *service) connect(addr, host, username, password, encryption string) (*gosmtp.Client, error) {
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	var client *gosmtp.Client
	switch encryption {
	case EncryptionSSL:
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s (SSL): %w", addr, err)
		}
		client, err = gosmtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
	default:
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", addr, err)
		}
		client, err = gosmtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
		if encryption == EncryptionStartTLS {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("starting TLS: %w", err)
			}
		}
	}

	if username != "" {
		auth := gosmtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("authenticating: %w", err)
		}
	}
	return client, nil
}

// transmit runs MAIL FROM, RCPT TO, DATA on an open client.
func transmit(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// decryptPassword returns the stored password in plaintext, or empty when
// none is configured.
func (s *service) decryptPassword(row *smtpRow) (string, error) {
	if len(row.PasswordEncrypted) == 0 {
		return "", nil
	}
	plaintext, err := decrypt(row.PasswordEncrypted, s.secret)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("decrypting smtp password: %w", err))
	}
	return string(plaintext), nil
}

// GetSettings returns SMTP settings with the password redacted.
func (s *service) GetSettings(ctx context.Context) (*SMTPSettings, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading smtp settings: %w", err))
	}
	return row.toSettings(), nil
}

// UpdateSettings saves SMTP settings. If the password field is empty,
// the existing encrypted password is preserved.
func (s *service) UpdateSettings(ctx context.Context, req UpdateSMTPRequest) error {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading current smtp settings: %w", err))
	}

	row := &smtpRow{
		Host:        strings.TrimSpace(req.Host),
		Port:        req.Port,
		Username:    strings.TrimSpace(req.Username),
		FromAddress: strings.TrimSpace(req.FromAddress),
		FromName:    strings.TrimSpace(req.FromName),
		Encryption:  req.Encryption,
		Enabled:     req.Enabled,
	}

	if row.Port <= 0 {
		row.Port = 587
	}
	if row.FromName == "" {
		row.FromName = "Gatehouse"
	}
	switch row.Encryption {
	case EncryptionStartTLS, EncryptionSSL, EncryptionNone:
	case "":
		row.Encryption = EncryptionStartTLS
	default:
		return apperror.NewValidation("encryption must be starttls, ssl, or none")
	}

	if req.Password != "" {
		encrypted, err := encrypt([]byte(req.Password), s.secret)
		if err != nil {
			return apperror.NewInternal(fmt.Errorf("encrypting smtp password: %w", err))
		}
		row.PasswordEncrypted = encrypted
	} else {
		row.PasswordEncrypted = current.PasswordEncrypted
	}

	if err := s.repo.Upsert(ctx, row); err != nil {
		return apperror.NewInternal(fmt.Errorf("saving smtp settings: %w", err))
	}

	slog.Info("smtp settings updated",
		slog.String("host", row.Host),
		slog.Int("port", row.Port),
		slog.Bool("enabled", row.Enabled),
	)
	return nil
}

// TestConnection dials, negotiates TLS, and authenticates with the stored
// settings. Failures come back as 400s carrying the server's reason so the
// admin can fix the configuration.
func (s *service) TestConnection(ctx context.Context) error {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("loading smtp settings: %w", err))
	}
	if row.Host == "" {
		return apperror.NewBadRequest("SMTP host is not configured")
	}

	password, err := s.decryptPassword(row)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", row.Host, row.Port)
	client, err := s.connect(addr, row.Host, row.Username, password, row.Encryption)
	if err != nil {
		return apperror.NewBadRequest(err.Error())
	}
	defer client.Close()

	return client.Quit()
}
