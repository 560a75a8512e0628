// Package dedup decides whether an actionable message repeats a ticket that
// was created recently. A fingerprint identifies "the same problem from the
// same person"; a Ledger answers whether a fingerprint produced a ticket
// within the dedup window.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Fingerprint returns the hex SHA-256 of sender|subject|kind with sender and
// subject lower-cased and trimmed. Subjects are compared verbatim otherwise,
// so "VPN down" and "VPN down again" are different problems.
func Fingerprint(sender, subject string, kind domain.IntentKind) string {
	s := strings.ToLower(strings.TrimSpace(sender)) + "|" +
		strings.ToLower(strings.TrimSpace(subject)) + "|" +
		string(kind)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
