package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// RecordTicket persists t and moves the message to processed in a single
// transaction. Either both writes land or neither does.
func RecordTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket, intent *domain.Intent, now time.Time) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o := Outcome{
			Status:      domain.StatusProcessed,
			Intent:      intent,
			Fingerprint: t.Fingerprint,
			TicketRef:   t.TicketRef,
		}
		if _, err := applyOutcome(tx, t.MessageRowID, o, now); err != nil {
			return err
		}
		if err := tx.Create(t).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

// FingerprintSeenSince reports whether an open ticket with fingerprint was
// created at or after since.
func FingerprintSeenSince(ctx context.Context, db *gorm.DB, fingerprint string, since time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("fingerprint = ? AND status = ? AND created_at >= ?", fingerprint, domain.TicketOpen, since.UTC()).
		Count(&n).Error
	return n > 0, err
}

// LatestTicketByFingerprint returns the most recent ticket for fingerprint.
func LatestTicketByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("created_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountTickets returns the number of recorded tickets.
func CountTickets(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Ticket{}).Count(&n).Error
	return n, err
}
