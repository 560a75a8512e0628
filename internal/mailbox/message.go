// Package mailbox pulls new mail from the monitored inbox and appends it to
// the intake store. The mailbox is never modified: messages are fetched
// read-only and progress is tracked by a persisted cursor.
package mailbox

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// RawMessage is one message as returned by a Source. Position is the
// mailbox's monotonically increasing identifier (the IMAP UID).
type RawMessage struct {
	Position uint32
	Raw      []byte
}

// Parsed is the normalized view of a message the store needs.
type Parsed struct {
	MessageID  string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Source lists messages strictly after a position.
type Source interface {
	FetchSince(ctx context.Context, after uint32) ([]RawMessage, error)
}

// ExtractAddress returns the lowercased bare address from a From header
// value such as `"Jane Doe" <Jane@Example.com>`. Values that do not parse
// are returned trimmed and lowercased.
func ExtractAddress(from string) string {
	from = strings.TrimSpace(from)
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(a.Address)
	}
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return strings.ToLower(strings.TrimSpace(from[i+1 : j]))
		}
	}
	return strings.ToLower(from)
}
