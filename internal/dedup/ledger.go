package dedup

import (
	"context"
	"time"
)

// DefaultWindow is how long a created ticket suppresses repeats.
const DefaultWindow = 7 * 24 * time.Hour

// Ledger records which fingerprints produced tickets and answers whether a
// fingerprint was seen within the window ending at now.
type Ledger interface {
	Seen(ctx context.Context, fingerprint string, now time.Time) (bool, error)
	Remember(ctx context.Context, fingerprint string, at time.Time) error
}

// TicketIndex is the query the SQL ledger needs from the ticket store.
type TicketIndex interface {
	FingerprintSeenSince(ctx context.Context, fingerprint string, since time.Time) (bool, error)
}

// SQLLedger answers from the tickets table. Ticket rows are written by the
// pipeline together with the message outcome, so Remember has nothing to do.
type SQLLedger struct {
	Index  TicketIndex
	Window time.Duration
}

// NewSQLLedger returns a ledger over idx. A non-positive window falls back
// to DefaultWindow.
func NewSQLLedger(idx TicketIndex, window time.Duration) *SQLLedger {
	if window <= 0 {
		window = DefaultWindow
	}
	return &SQLLedger{Index: idx, Window: window}
}

// Seen reports whether an open ticket with fingerprint exists that was
// created no earlier than now minus the window.
func (l *SQLLedger) Seen(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	return l.Index.FingerprintSeenSince(ctx, fingerprint, now.Add(-l.Window))
}

// Remember is a no-op; the ticket row is the record.
func (l *SQLLedger) Remember(context.Context, string, time.Time) error { return nil }
