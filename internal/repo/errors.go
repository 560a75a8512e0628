package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate indicates a unique constraint rejected the insert.
	ErrDuplicate = errors.New("duplicate")

	// ErrStaleStatus is returned when a message is no longer in the status
	// the caller expected (it was already moved to a terminal state).
	ErrStaleStatus = errors.New("message status changed")

	// ErrNotResettable is returned when an operator reset targets a message
	// whose status cannot go back to unprocessed.
	ErrNotResettable = errors.New("message status is not resettable")
)

// isUniqueViolation reports whether err is a unique constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
