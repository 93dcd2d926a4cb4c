package smtp

import (
	"bytes"
	"context"
	"net/mail"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-test-secret-key!"

// mockRepo is an in-memory SMTPRepository.
type mockRepo struct {
	row     *smtpRow
	getErr  error
	upserts int
}

func (m *mockRepo) Get(ctx context.Context) (*smtpRow, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.row, nil
}

func (m *mockRepo) Upsert(ctx context.Context, row *smtpRow) error {
	m.row = row
	m.upserts++
	return nil
}

func TestUpdateSettings_EncryptsPassword(t *testing.T) {
	repo := &mockRepo{row: &smtpRow{}}
	svc := NewSMTPService(repo, testSecret)

	err := svc.UpdateSettings(context.Background(), UpdateSMTPRequest{
		Host:     "mail.example.com",
		Port:     587,
		Username: "relay",
		Password: "hunter2",
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	if bytes.Contains(repo.row.PasswordEncrypted, []byte("hunter2")) {
		t.Fatal("password stored in plaintext")
	}
	plaintext, err := decrypt(repo.row.PasswordEncrypted, testSecret)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "hunter2" {
		t.Fatalf("decrypted %q, want hunter2", plaintext)
	}
}

func TestUpdateSettings_EmptyPasswordKeepsExisting(t *testing.T) {
	existing, err := encrypt([]byte("original"), testSecret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	repo := &mockRepo{row: &smtpRow{Host: "mail.example.com", PasswordEncrypted: existing}}
	svc := NewSMTPService(repo, testSecret)

	err = svc.UpdateSettings(context.Background(), UpdateSMTPRequest{
		Host:    "mail.example.com",
		Port:    587,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	plaintext, err := decrypt(repo.row.PasswordEncrypted, testSecret)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "original" {
		t.Fatalf("password was replaced, got %q", plaintext)
	}
}

func TestUpdateSettings_Defaults(t *testing.T) {
	repo := &mockRepo{row: &smtpRow{}}
	svc := NewSMTPService(repo, testSecret)

	if err := svc.UpdateSettings(context.Background(), UpdateSMTPRequest{Host: "mail.example.com"}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}

	if repo.row.Port != 587 {
		t.Errorf("port = %d, want 587", repo.row.Port)
	}
	if repo.row.FromName != "Gatehouse" {
		t.Errorf("from name = %q, want Gatehouse", repo.row.FromName)
	}
	if repo.row.Encryption != EncryptionStartTLS {
		t.Errorf("encryption = %q, want starttls", repo.row.Encryption)
	}
}

func TestUpdateSettings_RejectsUnknownEncryption(t *testing.T) {
	repo := &mockRepo{row: &smtpRow{}}
	svc := NewSMTPService(repo, testSecret)

	err := svc.UpdateSettings(context.Background(), UpdateSMTPRequest{
		Host:       "mail.example.com",
		Encryption: "tlsv1",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if repo.upserts != 0 {
		t.Fatal("invalid settings were saved")
	}
}

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name string
		row  *smtpRow
		want bool
	}{
		{"enabled with host", &smtpRow{Enabled: true, Host: "mail.example.com"}, true},
		{"disabled", &smtpRow{Enabled: false, Host: "mail.example.com"}, false},
		{"no host", &smtpRow{Enabled: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewSMTPService(&mockRepo{row: tc.row}, testSecret)
			if got := svc.IsConfigured(context.Background()); got != tc.want {
				t.Errorf("IsConfigured = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetSettings_RedactsPassword(t *testing.T) {
	sealed, _ := encrypt([]byte("hunter2"), testSecret)
	repo := &mockRepo{row: &smtpRow{
		Host:              "mail.example.com",
		PasswordEncrypted: sealed,
		UpdatedAt:         time.Now(),
	}}
	svc := NewSMTPService(repo, testSecret)

	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !settings.HasPassword {
		t.Error("HasPassword = false, want true")
	}
}

func TestBuildMessage_StripsHeaderInjection(t *testing.T) {
	from := mail.Address{Name: "Gatehouse", Address: "noreply@example.com"}
	msg := buildMessage(from, []string{"user@example.com"},
		"Reset your password\r\nBcc: attacker@example.com", "body")

	headers := strings.SplitN(msg, "\r\n\r\n", 2)[0]
	if strings.Contains(headers, "Bcc:") {
		t.Fatalf("injected header survived:\n%s", headers)
	}
	if !strings.Contains(headers, "Subject: Reset your passwordBcc: attacker@example.com") {
		t.Errorf("subject not flattened:\n%s", headers)
	}
}

func TestCrypto_TamperDetection(t *testing.T) {
	sealed, err := encrypt([]byte("hunter2"), testSecret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := decrypt(sealed, testSecret); err == nil {
		t.Fatal("tampered ciphertext decrypted")
	}

	if _, err := decrypt([]byte("short"), testSecret); err == nil {
		t.Fatal("truncated ciphertext decrypted")
	}
}

func TestCrypto_WrongKey(t *testing.T) {
	sealed, err := encrypt([]byte("hunter2"), testSecret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := decrypt(sealed, "a-different-secret-key-entirely!"); err == nil {
		t.Fatal("decrypted under the wrong key")
	}
}
