package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// LoadCursor returns the persisted cursor for mailbox. A mailbox that was
// never polled yields a zero cursor that is not bootstrapped.
func LoadCursor(ctx context.Context, db *gorm.DB, mailbox string) (domain.Cursor, error) {
	var c domain.Cursor
	err := db.WithContext(ctx).Where("mailbox = ?", mailbox).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Cursor{Mailbox: mailbox}, nil
	}
	return c, err
}

// AdvanceCursor moves the cursor forward to pos. Lower positions are ignored
// so the cursor never goes backwards.
func AdvanceCursor(ctx context.Context, db *gorm.DB, mailbox string, pos uint32, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Cursor{}).
			Where("mailbox = ? AND position < ?", mailbox, pos).
			Updates(map[string]any{"position": pos, "updated_at": now.UTC()})
		if res.Error != nil || res.RowsAffected > 0 {
			return res.Error
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&domain.Cursor{Mailbox: mailbox, Position: pos, UpdatedAt: now.UTC()}).Error
	})
}

// CompleteBootstrap records the first-run position and sets the bootstrap
// flag. It reports false without changes when the flag was already set.
func CompleteBootstrap(ctx context.Context, db *gorm.DB, mailbox string, pos uint32, now time.Time) (bool, error) {
	done := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Cursor
		err := tx.Where("mailbox = ?", mailbox).First(&c).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if found && c.Bootstrapped {
			return nil
		}
		at := now.UTC()
		c.Mailbox = mailbox
		if pos > c.Position {
			c.Position = pos
		}
		c.Bootstrapped = true
		c.BootstrappedAt = &at
		if found {
			err = tx.Save(&c).Error
		} else {
			err = tx.Create(&c).Error
		}
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}
