// Package ticketing maps classified messages to ITSM payloads and talks to
// the ServiceNow table API.
package ticketing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Table names in the ticket system.
const (
	TableIncident       = "incident"
	TableServiceRequest = "sc_request"
)

// MaxShortDescription is the upstream column width for short_description.
const MaxShortDescription = 100

const (
	defaultCategory = "inquiry"
	approvalState   = "requested"
	requestState    = "pending_approval"
)

// Input is everything the mapper needs. It is a pure value; mapping the
// same Input twice yields byte-identical payloads.
type Input struct {
	Subject     string
	Description string
	Intent      domain.Intent
	Requester   string // identity ref (sys_id)
	Correlation string
}

// IncidentPayload is the body posted to the incident table.
type IncidentPayload struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	CallerID         string `json:"caller_id"`
	Category         string `json:"category"`
	Subcategory      string `json:"subcategory"`
	Impact           string `json:"impact"`
	Urgency          string `json:"urgency"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

// ServiceRequestPayload is the body posted to the sc_request table.
type ServiceRequestPayload struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	RequestedFor     string `json:"requested_for"`
	Category         string `json:"category"`
	Approval         string `json:"approval"`
	RequestState     string `json:"request_state"`
	CorrelationID    string `json:"correlation_id,omitempty"`
}

// Map returns the target table and payload for in. Ignore intents are not
// mappable and return an error.
func Map(in Input) (string, any, error) {
	switch in.Intent.Kind {
	case domain.KindIncident:
		return TableIncident, MapIncident(in), nil
	case domain.KindServiceRequest:
		return TableServiceRequest, MapServiceRequest(in), nil
	default:
		return "", nil, fmt.Errorf("ticketing: kind %q is not mappable", in.Intent.Kind)
	}
}

// MapIncident builds an incident payload.
func MapIncident(in Input) IncidentPayload {
	level := Level(in.Intent.Priority)
	return IncidentPayload{
		ShortDescription: shortDescription(in),
		Description:      in.Description,
		CallerID:         in.Requester,
		Category:         category(in.Intent.Category),
		Subcategory:      strings.TrimSpace(in.Intent.Subcategory),
		Impact:           level,
		Urgency:          level,
		CorrelationID:    in.Correlation,
	}
}

// MapServiceRequest builds a service request payload.
func MapServiceRequest(in Input) ServiceRequestPayload {
	return ServiceRequestPayload{
		ShortDescription: shortDescription(in),
		Description:      in.Description,
		RequestedFor:     in.Requester,
		Category:         category(in.Intent.Category),
		Approval:         approvalState,
		RequestState:     requestState,
		CorrelationID:    in.Correlation,
	}
}

// Level maps a priority to the shared impact/urgency scale.
// Unknown or empty priorities are treated as medium.
func Level(p domain.Priority) string {
	switch domain.Priority(strings.ToLower(string(p))) {
	case domain.PriorityHigh:
		return "1"
	case domain.PriorityLow:
		return "3"
	default:
		return "2"
	}
}

// CorrelationToken derives the client-side token stored with each ticket so
// an operator can find a ticket that was created before a failure was
// observed. It changes with every operator reset.
func CorrelationToken(messageID string, attempt int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", messageID, attempt)))
	return "intake-" + hex.EncodeToString(sum[:8])
}

func shortDescription(in Input) string {
	s := strings.TrimSpace(in.Intent.ShortDescription)
	if s == "" {
		s = strings.TrimSpace(in.Subject)
	}
	return clip(s, MaxShortDescription)
}

func category(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return defaultCategory
	}
	return strings.ToLower(c)
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
