package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	insertFn         func(ctx context.Context, entry *Entry) error
	listByAccountFn  func(ctx context.Context, accountID int64, limit int) ([]Entry, error)
	countByAccountFn func(ctx context.Context, accountID int64) (int, error)
	inserted         []Entry
}

func (m *mockRepo) Insert(ctx context.Context, entry *Entry) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, entry); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, *entry)
	return nil
}

func (m *mockRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
	if m.listByAccountFn != nil {
		return m.listByAccountFn(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *mockRepo) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	if m.countByAccountFn != nil {
		return m.countByAccountFn(ctx, accountID)
	}
	return 0, nil
}

func TestRecord_Success(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	accountID := int64(42)
	err := svc.Record(context.Background(), &accountID, ActionLogin, StatusSucceed, Metadata{
		UserIP:    "198.51.100.7",
		DeviceUID: "dev-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.Action != ActionLogin || got.Status != StatusSucceed {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.AccountID == nil || *got.AccountID != 42 {
		t.Errorf("expected account id 42, got %v", got.AccountID)
	}
}

func TestRecord_NilAccount(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	err := svc.Record(context.Background(), nil, ActionAPIKeySession, StatusError, Metadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.inserted[0].AccountID != nil {
		t.Error("expected nil account id to be preserved")
	}
}

func TestRecord_MissingFields(t *testing.T) {
	svc := NewService(&mockRepo{})

	if err := svc.Record(context.Background(), nil, "", StatusSucceed, Metadata{}); err == nil {
		t.Error("expected error for empty action")
	}
	if err := svc.Record(context.Background(), nil, ActionLogin, "", Metadata{}); err == nil {
		t.Error("expected error for empty status")
	}
}

func TestRecord_WriteFailureIsAuditWriteFailure(t *testing.T) {
	repo := &mockRepo{
		insertFn: func(ctx context.Context, entry *Entry) error {
			return errors.New("db gone")
		},
	}
	svc := NewService(repo)

	err := svc.Record(context.Background(), nil, ActionLogin, StatusSucceed, Metadata{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperror.IsType(err, apperror.TypeAuditWriteFailure) {
		t.Errorf("expected audit_write_failure, got %v", err)
	}
	if apperror.SafeCode(err) != 500 {
		t.Errorf("expected status 500, got %d", apperror.SafeCode(err))
	}
}

func TestListByAccount_CapsLimit(t *testing.T) {
	var gotLimit int
	repo := &mockRepo{
		listByAccountFn: func(ctx context.Context, accountID int64, limit int) ([]Entry, error) {
			gotLimit = limit
			return []Entry{{ID: 1}}, nil
		},
	}
	svc := NewService(repo)

	entries, err := svc.ListByAccount(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
	if gotLimit != maxListEntries {
		t.Errorf("expected limit %d, got %d", maxListEntries, gotLimit)
	}
}

func TestRecord_ClampsClientMetadata(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	accountID := int64(42)
	err := svc.Record(context.Background(), &accountID, ActionLogin, StatusSucceed, Metadata{
		UserIP:      strings.Repeat("1", 60),
		UserAgent:   strings.Repeat("x", 300),
		UserOS:      strings.Repeat("o", 40),
		UserBrowser: strings.Repeat("b", 40),
		Country:     "ABC",
		DeviceUID:   strings.Repeat("d", 100),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := repo.inserted[0].Metadata
	if n := len(got.UserIP); n != 45 {
		t.Errorf("user ip length = %d, want 45", n)
	}
	if n := len(got.UserAgent); n != 255 {
		t.Errorf("user agent length = %d, want 255", n)
	}
	if n := len(got.UserOS); n != 30 {
		t.Errorf("user os length = %d, want 30", n)
	}
	if n := len(got.UserBrowser); n != 30 {
		t.Errorf("user browser length = %d, want 30", n)
	}
	if got.Country != "" {
		t.Errorf("three-letter country stored as %q, want dropped", got.Country)
	}
	if got.DeviceUID != "" {
		t.Errorf("oversized device uid stored as %q, want dropped", got.DeviceUID)
	}
}

func TestRecord_KeepsConformingMetadata(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	meta := Metadata{
		UserIP:      "198.51.100.7",
		UserAgent:   "Mozilla/5.0",
		UserOS:      "Linux",
		UserBrowser: "Firefox",
		Country:     "de",
		DeviceUID:   "3f1c9a2e-8b4d-4c6f-9e7a-1d2b3c4d5e6f",
	}
	if err := svc.Record(context.Background(), nil, ActionLogin, StatusSucceed, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := repo.inserted[0].Metadata; got != meta {
		t.Errorf("conforming metadata altered: got %+v, want %+v", got, meta)
	}
}
