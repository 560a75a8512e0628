// Package services – ChatService
//
// This file implements the chat orchestrator. Each turn runs under the
// requester's session lock: a matching FAQ entry is answered directly,
// otherwise the assistant decides between a plain reply, a clarifying
// question or opening a ticket. Tickets opened from chat are not checked
// against the mail dedup ledger.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-ticket-intake/internal/chat"
	"github.com/tbourn/go-ticket-intake/internal/classifier"
	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/faq"
	"github.com/tbourn/go-ticket-intake/internal/observability"
	"github.com/tbourn/go-ticket-intake/internal/ticketing"
)

// FallbackReply is returned when the assistant cannot be reached or its
// answer is unusable.
const FallbackReply = "I'm here to help with IT service management. How can I assist you?"

const ticketFailedReply = "Sorry, I could not create the ticket right now. Please try again in a few minutes or email IT support."

// Decider picks the next step of a conversation.
type Decider interface {
	Decide(ctx context.Context, history []domain.Turn, message, requester string) (classifier.Decision, error)
}

// ChatReply is the outcome of one chat turn.
type ChatReply struct {
	Response       string
	TicketCreated  bool
	TicketRef      string
	RequiresAction bool
}

// ChatService coordinates sessions, the FAQ, the assistant and the ticket
// system for the chat surface.
type ChatService struct {
	Sessions *chat.Store
	FAQ      *faq.KnowledgeBase // nil disables FAQ answers
	Decider  Decider
	Tickets  TicketGateway
	Notifier Notifier // nil disables confirmation mail

	// MaxMessageRunes caps a single chat message; 0 means unlimited.
	MaxMessageRunes int
	Now             func() time.Time
}

// Reply handles one user message.
func (s *ChatService) Reply(ctx context.Context, requester, message string) (ChatReply, error) {
	requester = strings.ToLower(strings.TrimSpace(requester))
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return ChatReply{}, ErrTooLong
	}
	if !strings.Contains(requester, "@") {
		return ChatReply{}, ErrInvalidRequester
	}

	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Reply", trace.WithAttributes(attribute.Int("chat.message_runes", utf8.RuneCountInString(message))))
	defer span.End()

	sess, release := s.Sessions.Acquire(requester)
	defer release()
	history := sess.History()

	reply := s.decide(ctx, history, requester, message)
	span.SetAttributes(attribute.Bool("chat.ticket_created", reply.TicketCreated))

	now := s.now()
	sess.Append(domain.RoleUser, message, now)
	sess.Append(domain.RoleAssistant, reply.Response, now)
	return reply, nil
}

func (s *ChatService) decide(ctx context.Context, history []domain.Turn, requester, message string) ChatReply {
	if s.FAQ != nil {
		if m, ok := s.FAQ.Match(message); ok {
			return ChatReply{Response: m.Entry.Answer}
		}
	}

	d, err := s.Decider.Decide(ctx, history, message, requester)
	if err != nil {
		log.Warn().Err(err).Msg("chat decision failed; using fallback reply")
		return ChatReply{Response: FallbackReply}
	}
	switch d.Type {
	case classifier.DecisionChat:
		return ChatReply{Response: d.Response}
	case classifier.DecisionClarify:
		return ChatReply{Response: d.Response, RequiresAction: true}
	case classifier.DecisionCreateTicket:
		return s.createTicket(ctx, requester, *d.Ticket)
	}
	return ChatReply{Response: FallbackReply}
}

func (s *ChatService) createTicket(ctx context.Context, requester string, draft classifier.TicketDraft) ChatReply {
	ident, err := s.Tickets.ResolveIdentity(ctx, requester)
	if err != nil {
		if errors.Is(err, ticketing.ErrIdentityNotFound) {
			log.Warn().Str("requester", requester).Msg("chat ticket: requester unknown and no fallback identity")
		} else {
			log.Error().Err(err).Msg("chat ticket: identity lookup failed")
		}
		return ChatReply{Response: ticketFailedReply}
	}

	intent := draft.Intent()
	table, payload, err := ticketing.Map(ticketing.Input{
		Subject:     draft.ShortDescription,
		Description: chatDescription(requester, draft),
		Intent:      intent,
		Requester:   ident.Ref,
		Correlation: ticketing.CorrelationToken("chat:"+requester+":"+s.now().Format(time.RFC3339Nano), 0),
	})
	if err != nil {
		log.Error().Err(err).Msg("chat ticket: mapping failed")
		return ChatReply{Response: ticketFailedReply}
	}
	created, err := s.Tickets.Create(ctx, table, payload)
	if err != nil {
		log.Error().Err(err).Str("requester", requester).Msg("chat ticket: create failed")
		return ChatReply{Response: ticketFailedReply}
	}
	observability.TicketsCreated.WithLabelValues(string(intent.Kind), "chat").Inc()
	log.Info().Str("ticket_ref", created.Number).Str("kind", string(intent.Kind)).Msg("chat ticket created")

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket created successfully.\n\nTicket Number: %s\n", created.Number)
	if draft.ShortDescription != "" {
		fmt.Fprintf(&b, "Summary: %s\n", clipRunes(draft.ShortDescription, 80))
	}
	if s.Notifier != nil {
		if err := s.Notifier.TicketCreated(ctx, requester, created.Number); err != nil {
			log.Warn().Err(err).Str("ticket_ref", created.Number).Msg("chat ticket: confirmation mail failed")
		} else {
			fmt.Fprintf(&b, "\nA confirmation email has been sent to %s.", requester)
		}
	}
	return ChatReply{Response: strings.TrimRight(b.String(), "\n"), TicketCreated: true, TicketRef: created.Number}
}

// Reset ends the requester's conversation. It reports whether one existed.
func (s *ChatService) Reset(requester string) bool {
	return s.Sessions.End(requester)
}

// ActiveConversations returns the number of live sessions.
func (s *ChatService) ActiveConversations() int {
	return s.Sessions.Active()
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func chatDescription(requester string, d classifier.TicketDraft) string {
	details := d.Description
	if details == "" {
		details = "No details provided"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Created via chat by: %s\n\nDetails: %s\n", requester, details)
	if d.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", d.Category)
	}
	if d.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", d.Priority)
	}
	return b.String()
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
