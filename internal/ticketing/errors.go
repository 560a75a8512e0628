package ticketing

import (
	"errors"
	"fmt"
)

// ErrIdentityNotFound is returned when neither the sender nor the configured
// fallback identity can be used as requester.
var ErrIdentityNotFound = errors.New("ticketing: requester identity not found")

// TicketSystemError reports a failed call to the ticket system. Status is 0
// for transport failures, in which case Err holds the cause.
type TicketSystemError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TicketSystemError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("ticket system %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ticket system %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *TicketSystemError) Unwrap() error { return e.Err }

// Transport reports whether the request never got an HTTP answer.
func (e *TicketSystemError) Transport() bool { return e.Status == 0 }

// Temporary reports whether repeating a read-only call may succeed:
// transport failures, throttling and server errors.
func (e *TicketSystemError) Temporary() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
