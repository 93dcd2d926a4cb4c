package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatehouseid/gatehouse/internal/apperror"
)

// maxListEntries caps the number of entries returned for a single account
// to prevent unbounded result sets.
const maxListEntries = 100

// Service handles business logic for the audit trail. Unlike most services,
// a write failure here is NOT fire-and-forget: the sign-in and exchange
// pipelines require every attempt to be recorded before a response leaves
// the server, so Record errors propagate as audit_write_failure.
type Service interface {
	// Record persists one attempt. accountID is nil when the attempt
	// failed before an account was resolved.
	Record(ctx context.Context, accountID *int64, action, status string, meta Metadata) error

	// ListByAccount returns the recent trail for an account, newest first.
	ListByAccount(ctx context.Context, accountID int64) ([]Entry, error)
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new audit service with the given repository.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Record validates and persists an entry. A failed write is logged and
// surfaced as an audit_write_failure so the caller aborts the request:
// an attempt without a trail row must not complete.
func (s *service) Record(ctx context.Context, accountID *int64, action, status string, meta Metadata) error {
	if action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}
	if status == "" {
		return apperror.NewBadRequest("status is required for audit entry")
	}

	entry := &Entry{
		AccountID: accountID,
		Action:    action,
		Status:    status,
		Metadata:  meta.clamped(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		slog.Error("failed to write audit entry",
			slog.String("action", action),
			slog.String("status", status),
			slog.Any("error", err),
		)
		return apperror.NewAuditWriteFailure(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// ListByAccount returns the recent trail for an account. Limited to
// maxListEntries to prevent excessively large responses.
func (s *service) ListByAccount(ctx context.Context, accountID int64) ([]Entry, error) {
	entries, err := s.repo.ListByAccount(ctx, accountID, maxListEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}
	return entries, nil
}
