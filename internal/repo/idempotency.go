package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Stored chat replies, keyed by requester and Idempotency-Key. Requesters
// are compared case-insensitively, like the chat sessions they belong to.

func liveReplies(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Model(&domain.Idempotency{}).Where("expires_at > ?", now)
}

func requesterKey(requester string) string {
	return strings.ToLower(strings.TrimSpace(requester))
}

// GetIdempotency returns the live reply stored for requester and key, or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, requester, key string, now time.Time) (*domain.Idempotency, error) {
	requester = requesterKey(requester)
	if requester == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := liveReplies(db.WithContext(ctx), now).
		Where("requester = ? AND key = ?", requester, key).
		Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// IdempotencyKeyExists reports whether any requester has a live reply under
// key. The HTTP layer asks this before the body, and so the requester, is
// known.
func IdempotencyKeyExists(ctx context.Context, db *gorm.DB, key string, now time.Time) (bool, error) {
	var n int64
	err := liveReplies(db.WithContext(ctx), now).
		Where("key = ?", key).
		Count(&n).Error
	return n > 0, err
}

// CreateIdempotency stores a reply for ttl. A second reply under the same
// requester and key yields ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, requester, key, response string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Requester: requesterKey(requester),
		Key:       key,
		Response:  response,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	switch {
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes replies that expired at or before now and
// returns how many went.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
