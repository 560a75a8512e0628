// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ingested
// messages and their status transitions.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Outcome is the terminal result the pipeline records for a message.
type Outcome struct {
	Status      domain.MessageStatus
	Intent      *domain.Intent
	Fingerprint string
	TicketRef   string
	LastError   string
}

// InsertMessage stores m unless a row with the same message_id exists.
// It reports whether a new row was created; a second insert of the same
// message_id is a no-op, not an error.
func InsertMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = domain.StatusUnprocessed
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetMessage fetches a message by its internal ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByMessageID fetches a message by its RFC 5322 Message-ID.
func GetMessageByMessageID(ctx context.Context, db *gorm.DB, messageID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("message_id = ?", messageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListUnprocessed returns up to limit unprocessed messages in arrival order.
func ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("status = ?", domain.StatusUnprocessed).
		Order("position ASC, created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkOutcome moves an unprocessed message to a terminal status. It returns
// ErrStaleStatus when the message already left unprocessed.
func MarkOutcome(ctx context.Context, db *gorm.DB, id string, o Outcome, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := applyOutcome(tx, id, o, now)
		return err
	})
}

func applyOutcome(tx *gorm.DB, id string, o Outcome, now time.Time) (*domain.Message, error) {
	if !o.Status.Terminal() {
		return nil, errors.New("outcome status must be terminal")
	}
	var m domain.Message
	if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	if m.Status != domain.StatusUnprocessed {
		return nil, ErrStaleStatus
	}
	m.Status = o.Status
	if o.Intent != nil {
		m.Intent = o.Intent
	}
	if o.Fingerprint != "" {
		fp := o.Fingerprint
		m.Fingerprint = &fp
	}
	if o.TicketRef != "" {
		ref := o.TicketRef
		m.TicketRef = &ref
	}
	m.LastError = o.LastError
	at := now.UTC()
	m.ProcessedAt = &at
	if err := tx.Save(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ResetMessage moves a message in a resettable error status back to
// unprocessed so the pipeline picks it up again. The attempt counter is
// bumped, which changes the ticket correlation token.
func ResetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var out *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m domain.Message
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		if !m.Status.Resettable() {
			return ErrNotResettable
		}
		m.Status = domain.StatusUnprocessed
		m.Attempts++
		m.Intent = nil
		m.Fingerprint = nil
		m.LastError = ""
		m.ProcessedAt = nil
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		out = &m
		return nil
	})
	return out, err
}

// CountMessages returns the number of messages, optionally filtered by status.
func CountMessages(ctx context.Context, db *gorm.DB, status domain.MessageStatus) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.Message{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages, newest first, optionally
// filtered by status.
func ListMessagesPage(ctx context.Context, db *gorm.DB, status domain.MessageStatus, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}
