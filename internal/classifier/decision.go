package classifier

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// DecisionType is what the assistant chose to do with a chat turn.
type DecisionType string

const (
	DecisionChat         DecisionType = "chat_response"
	DecisionClarify      DecisionType = "ask_for_clarification"
	DecisionCreateTicket DecisionType = "create_ticket"
)

// TicketDraft is the ticket the assistant wants to open.
type TicketDraft struct {
	Kind             domain.IntentKind `json:"ticket_type"`
	ShortDescription string            `json:"short_description"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	Priority         domain.Priority   `json:"priority"`
}

// Intent converts the draft into the shared intent shape used by the mapper.
func (d TicketDraft) Intent() domain.Intent {
	return domain.Intent{
		Kind:             d.Kind,
		Category:         d.Category,
		ShortDescription: d.ShortDescription,
		Priority:         d.Priority,
	}
}

// Decision is the parsed reply of a chat turn.
type Decision struct {
	Type     DecisionType `json:"response_type"`
	Response string       `json:"response"`
	Ticket   *TicketDraft `json:"ticket_data,omitempty"`
}

// ParseDecision validates a raw chat reply.
func ParseDecision(reply string) (Decision, error) {
	var d Decision
	if err := decodeReply(reply, &d); err != nil {
		return Decision{}, err
	}
	d.Type = DecisionType(strings.ToLower(strings.TrimSpace(string(d.Type))))
	d.Response = strings.TrimSpace(d.Response)

	invalid := func(format string, args ...any) (Decision, error) {
		return Decision{}, &ClassificationError{Reason: ReasonInvalid, Raw: preview(reply), Err: fmt.Errorf(format, args...)}
	}

	switch d.Type {
	case DecisionChat, DecisionClarify:
		if d.Response == "" {
			return invalid("%s without response text", d.Type)
		}
		d.Ticket = nil
	case DecisionCreateTicket:
		if d.Ticket == nil {
			return invalid("create_ticket without ticket_data")
		}
		d.Ticket.Kind = domain.IntentKind(strings.ToLower(strings.TrimSpace(string(d.Ticket.Kind))))
		if d.Ticket.Kind != domain.KindIncident && d.Ticket.Kind != domain.KindServiceRequest {
			return invalid("unknown ticket_type %q", d.Ticket.Kind)
		}
		d.Ticket.Priority = normalizePriority(string(d.Ticket.Priority))
		d.Ticket.ShortDescription = strings.TrimSpace(d.Ticket.ShortDescription)
		d.Ticket.Description = strings.TrimSpace(d.Ticket.Description)
		d.Ticket.Category = strings.TrimSpace(d.Ticket.Category)
	default:
		return invalid("unknown response_type %q", d.Type)
	}
	return d, nil
}
