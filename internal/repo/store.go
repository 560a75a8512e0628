package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Store binds the repository functions to a database handle so the mailbox
// poller, the pipeline and the dedup ledger can depend on narrow interfaces
// instead of *gorm.DB.
type Store struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewStore returns a Store using the wall clock.
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// InsertMessage proxies InsertMessage.
func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) (bool, error) {
	return InsertMessage(ctx, s.DB, m)
}

// ListUnprocessed proxies ListUnprocessed.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]domain.Message, error) {
	return ListUnprocessed(ctx, s.DB, limit)
}

// MarkOutcome proxies MarkOutcome.
func (s *Store) MarkOutcome(ctx context.Context, id string, o Outcome) error {
	return MarkOutcome(ctx, s.DB, id, o, s.now())
}

// RecordTicket proxies RecordTicket.
func (s *Store) RecordTicket(ctx context.Context, t *domain.Ticket, intent *domain.Intent) error {
	return RecordTicket(ctx, s.DB, t, intent, s.now())
}

// LatestTicket proxies LatestTicketByFingerprint.
func (s *Store) LatestTicket(ctx context.Context, fingerprint string) (*domain.Ticket, error) {
	return LatestTicketByFingerprint(ctx, s.DB, fingerprint)
}

// FingerprintSeenSince proxies FingerprintSeenSince.
func (s *Store) FingerprintSeenSince(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
	return FingerprintSeenSince(ctx, s.DB, fingerprint, since)
}

// LoadCursor proxies LoadCursor.
func (s *Store) LoadCursor(ctx context.Context, mailbox string) (domain.Cursor, error) {
	return LoadCursor(ctx, s.DB, mailbox)
}

// AdvanceCursor proxies AdvanceCursor.
func (s *Store) AdvanceCursor(ctx context.Context, mailbox string, pos uint32) error {
	return AdvanceCursor(ctx, s.DB, mailbox, pos, s.now())
}

// CompleteBootstrap proxies CompleteBootstrap.
func (s *Store) CompleteBootstrap(ctx context.Context, mailbox string, pos uint32) (bool, error) {
	return CompleteBootstrap(ctx, s.DB, mailbox, pos, s.now())
}

// ResetMessage proxies ResetMessage.
func (s *Store) ResetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return ResetMessage(ctx, s.DB, id)
}

// ListMessages returns a page of messages and the total for the filter.
func (s *Store) ListMessages(ctx context.Context, status domain.MessageStatus, offset, limit int) ([]domain.Message, int64, error) {
	total, err := CountMessages(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	items, err := ListMessagesPage(ctx, s.DB, status, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// StatusCounts proxies StatusCounts.
func (s *Store) StatusCounts(ctx context.Context) (map[domain.MessageStatus]int64, error) {
	return StatusCounts(ctx, s.DB)
}
