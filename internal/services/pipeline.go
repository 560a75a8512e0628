// Package services – Pipeline
//
// This file implements the intent pipeline that turns stored mail into
// tickets. Each drain takes a batch of unprocessed messages and runs every
// message through the same stages: pre-filter, classify, dedup, resolve the
// requester, map, create the ticket, persist and notify. Every message ends
// in exactly one terminal status unless a transient read failure leaves it
// unprocessed for the next drain.
//
// Observability: drains and messages are traced; outcomes feed the
// intake_messages_total and intake_tickets_created_total counters.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-ticket-intake/internal/dedup"
	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/observability"
	"github.com/tbourn/go-ticket-intake/internal/prefilter"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/ticketing"
)

const (
	defaultBatchSize = 50
	maxLastError     = 2000

	// persistTimeout bounds the writes that follow a ticket create. They run
	// detached from the caller so a shutdown cannot drop them.
	persistTimeout = 10 * time.Second
)

// PipelineStore is the persistence the pipeline needs.
type PipelineStore interface {
	ListUnprocessed(ctx context.Context, limit int) ([]domain.Message, error)
	MarkOutcome(ctx context.Context, id string, o repo.Outcome) error
	RecordTicket(ctx context.Context, t *domain.Ticket, intent *domain.Intent) error
	LatestTicket(ctx context.Context, fingerprint string) (*domain.Ticket, error)
}

// Classifier turns message text into an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Intent, error)
}

// TicketGateway is the ticket system as the services see it.
type TicketGateway interface {
	ResolveIdentity(ctx context.Context, email string) (ticketing.Identity, error)
	Create(ctx context.Context, table string, payload any) (ticketing.Created, error)
}

// Notifier tells requesters about their tickets.
type Notifier interface {
	TicketCreated(ctx context.Context, to, ticketRef string) error
	DuplicateReported(ctx context.Context, to, ticketRef string) error
}

// Pipeline processes unprocessed messages. Processing is strictly
// sequential; Run must not be started twice against the same store.
type Pipeline struct {
	Store      PipelineStore
	Filter     *prefilter.Filter
	Classifier Classifier
	Ledger     dedup.Ledger
	Tickets    TicketGateway
	Notifier   Notifier // nil disables notifications

	NotifyDuplicates bool
	QuietCreated     bool // no notice for newly created tickets
	BatchSize        int
	Interval         time.Duration
	Now              func() time.Time

	mu sync.Mutex
	// intents holds classifications of deferred messages so a retry does
	// not pay for the classifier again.
	intents map[string]domain.Intent
	// held lists messages whose ticket create was attempted but whose
	// outcome could not be written. They are never processed again by this
	// process; an operator reconciles them.
	held map[string]string
}

// DrainResult counts what one drain did, by resulting status. Messages
// left unprocessed by a transient failure are counted under Deferred.
type DrainResult struct {
	Fetched  int
	Statuses map[domain.MessageStatus]int
	Deferred int
	Held     int
}

// errDeferred marks a message left unprocessed on purpose.
var errDeferred = errors.New("deferred to next drain")

// Drain processes one batch of unprocessed messages. A failure on one
// message never stops the batch; only a failure to list the batch is
// returned.
func (p *Pipeline) Drain(ctx context.Context) (DrainResult, error) {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "Drain")
	defer span.End()
	start := time.Now()
	defer func() { observability.DrainDuration.Observe(time.Since(start).Seconds()) }()

	res := DrainResult{Statuses: make(map[domain.MessageStatus]int)}
	limit := p.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	msgs, err := p.Store.ListUnprocessed(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list unprocessed")
		return res, fmt.Errorf("list unprocessed: %w", err)
	}
	res.Fetched = len(msgs)
	span.SetAttributes(attribute.Int("batch.size", len(msgs)))

	for i := range msgs {
		if ctx.Err() != nil {
			break
		}
		if ref, ok := p.heldRef(msgs[i].ID); ok {
			res.Held++
			log.Warn().Str("message_id", msgs[i].MessageID).Str("ticket_ref", ref).
				Msg("message held: ticket create attempted but outcome not recorded")
			continue
		}
		status, err := p.processSafe(ctx, msgs[i])
		switch {
		case errors.Is(err, errDeferred):
			res.Deferred++
		case err != nil:
			res.Deferred++
			log.Error().Err(err).Str("message_id", msgs[i].MessageID).Msg("message processing failed")
		default:
			res.Statuses[status]++
		}
	}
	return res, ctx.Err()
}

// Run drains immediately and then every Interval until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p.cycle(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.cycle(ctx)
		}
	}
}

func (p *Pipeline) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pipeline cycle recovered")
		}
	}()
	res, err := p.Drain(ctx)
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("pipeline drain failed")
		return
	}
	if res.Fetched > 0 {
		ev := log.Info().Int("fetched", res.Fetched).Int("deferred", res.Deferred).Int("held", res.Held)
		for s, n := range res.Statuses {
			ev = ev.Int(string(s), n)
		}
		ev.Msg("pipeline drain")
	}
}

// processSafe isolates one message: a panic is converted to an error and
// the message stays unprocessed.
func (p *Pipeline) processSafe(ctx context.Context, m domain.Message) (status domain.MessageStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
		}
	}()
	return p.Process(ctx, m)
}

// Process runs m through every stage and records its terminal status.
// errDeferred (wrapped) means m was deliberately left unprocessed.
func (p *Pipeline) Process(ctx context.Context, m domain.Message) (domain.MessageStatus, error) {
	tr := otel.Tracer("services/Pipeline")
	ctx, span := tr.Start(ctx, "Process", trace.WithAttributes(
		attribute.String("message.id", m.ID),
		attribute.Int("message.attempts", m.Attempts),
	))
	defer span.End()

	logger := log.With().Str("message_id", m.MessageID).Str("id", m.ID).Logger()
	text := messageText(m)

	// Pre-filter.
	if p.Filter != nil {
		if reason := p.Filter.Check(text); reason != prefilter.ReasonNone {
			return p.finish(ctx, &logger, m, repo.Outcome{Status: domain.StatusIgnored, LastError: "prefilter: " + string(reason)})
		}
	} else if strings.TrimSpace(text) == "" {
		return p.finish(ctx, &logger, m, repo.Outcome{Status: domain.StatusIgnored, LastError: "prefilter: empty"})
	}

	// Classify, unless an earlier deferred run already did.
	intent, cached := p.takeIntent(m.ID)
	if !cached {
		var err error
		intent, err = p.Classifier.Classify(ctx, text)
		if err != nil {
			span.RecordError(err)
			return p.finish(ctx, &logger, m, repo.Outcome{Status: domain.StatusErrorClassification, LastError: clipError(err)})
		}
	}
	if intent.Kind == domain.KindIgnore {
		return p.finish(ctx, &logger, m, repo.Outcome{Status: domain.StatusIgnored, Intent: &intent})
	}

	// Dedup.
	fp := dedup.Fingerprint(m.Sender, m.Subject, intent.Kind)
	now := p.now()
	seen, err := p.Ledger.Seen(ctx, fp, now)
	if err != nil {
		logger.Warn().Err(err).Msg("dedup lookup failed; message deferred")
		p.keepIntent(m.ID, intent)
		return domain.StatusUnprocessed, fmt.Errorf("dedup: %w: %w", err, errDeferred)
	}
	if seen {
		o := repo.Outcome{Status: domain.StatusDuplicate, Intent: &intent, Fingerprint: fp}
		if prior, err := p.Store.LatestTicket(ctx, fp); err == nil {
			o.TicketRef = prior.TicketRef
		}
		status, err := p.finish(ctx, &logger, m, o)
		if err == nil && p.NotifyDuplicates && o.TicketRef != "" {
			p.notify(ctx, &logger, func(ctx context.Context) error {
				return p.Notifier.DuplicateReported(ctx, m.Sender, o.TicketRef)
			})
		}
		return status, err
	}

	// Resolve requester.
	ident, err := p.Tickets.ResolveIdentity(ctx, m.Sender)
	if err != nil {
		var tse *ticketing.TicketSystemError
		switch {
		case errors.Is(err, ticketing.ErrIdentityNotFound):
			return p.finish(ctx, &logger, m, repo.Outcome{
				Status: domain.StatusErrorNoRequester, Intent: &intent, Fingerprint: fp, LastError: clipError(err),
			})
		case errors.As(err, &tse) && tse.Temporary():
			logger.Warn().Err(err).Msg("identity lookup failed; message deferred")
			p.keepIntent(m.ID, intent)
			return domain.StatusUnprocessed, fmt.Errorf("resolve identity: %w: %w", err, errDeferred)
		default:
			return p.finish(ctx, &logger, m, repo.Outcome{
				Status: domain.StatusErrorTicketSystem, Intent: &intent, Fingerprint: fp, LastError: clipError(err),
			})
		}
	}
	if ident.Fallback {
		logger.Info().Str("sender", m.Sender).Msg("sender unknown to ticket system; using fallback identity")
	}

	// Map.
	table, payload, err := ticketing.Map(ticketing.Input{
		Subject:     m.Subject,
		Description: description(m),
		Intent:      intent,
		Requester:   ident.Ref,
		Correlation: ticketing.CorrelationToken(m.MessageID, m.Attempts),
	})
	if err != nil {
		return p.finish(ctx, &logger, m, repo.Outcome{Status: domain.StatusErrorClassification, Intent: &intent, LastError: clipError(err)})
	}

	// Create. Never retried: a failure may still have created the ticket.
	if err := ctx.Err(); err != nil {
		p.keepIntent(m.ID, intent)
		return domain.StatusUnprocessed, fmt.Errorf("create: %w: %w", err, errDeferred)
	}
	created, err := p.Tickets.Create(ctx, table, payload)

	// From here on the message must not stay unprocessed, whatever happens
	// to ctx.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err != nil {
		span.RecordError(err)
		status, ferr := p.finish(pctx, &logger, m, repo.Outcome{
			Status: domain.StatusErrorTicketSystem, Intent: &intent, Fingerprint: fp, LastError: clipError(err),
		})
		if ferr != nil {
			p.hold(&logger, m, "", ferr)
		}
		return status, ferr
	}
	observability.TicketsCreated.WithLabelValues(string(intent.Kind), "mail").Inc()
	span.SetAttributes(attribute.String("ticket.ref", created.Number))

	// Persist ticket and message outcome together.
	ticket := &domain.Ticket{
		MessageRowID: m.ID,
		Fingerprint:  fp,
		Kind:         intent.Kind,
		TicketRef:    created.Number,
		ExternalID:   created.SysID,
		CreatedAt:    now,
	}
	if err := p.Store.RecordTicket(pctx, ticket, &intent); err != nil {
		logger.Error().Err(err).Str("ticket_ref", created.Number).Str("fingerprint", fp).
			Msg("reconciliation gap: ticket created upstream but not recorded")
		status, merr := p.finish(pctx, &logger, m, repo.Outcome{
			Status:      domain.StatusErrorReconciliation,
			Intent:      &intent,
			Fingerprint: fp,
			TicketRef:   created.Number,
			LastError:   clipError(fmt.Errorf("record ticket %s: %w", created.Number, err)),
		})
		if merr != nil {
			p.hold(&logger, m, created.Number, merr)
		}
		return status, merr
	}
	observability.MessagesTotal.WithLabelValues(string(domain.StatusProcessed)).Inc()
	logger.Info().Str("status", string(domain.StatusProcessed)).Str("ticket_ref", created.Number).
		Str("fingerprint", fp).Str("kind", string(intent.Kind)).Msg("ticket created")

	if err := p.Ledger.Remember(pctx, fp, now); err != nil {
		logger.Warn().Err(err).Msg("dedup mirror not updated")
	}
	if !p.QuietCreated {
		p.notify(pctx, &logger, func(ctx context.Context) error {
			return p.Notifier.TicketCreated(ctx, m.Sender, created.Number)
		})
	}
	return domain.StatusProcessed, nil
}

// finish records a terminal outcome. A message that already left
// unprocessed (another worker, an operator) is reported but not overwritten.
func (p *Pipeline) finish(ctx context.Context, logger *zerolog.Logger, m domain.Message, o repo.Outcome) (domain.MessageStatus, error) {
	if err := p.Store.MarkOutcome(ctx, m.ID, o); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			logger.Warn().Msg("message already processed elsewhere")
			return o.Status, nil
		}
		return domain.StatusUnprocessed, fmt.Errorf("mark %s: %w", o.Status, err)
	}
	observability.MessagesTotal.WithLabelValues(string(o.Status)).Inc()
	ev := logger.Info()
	if o.Status != domain.StatusIgnored && o.Status != domain.StatusDuplicate {
		ev = logger.Warn()
	}
	ev = ev.Str("status", string(o.Status))
	if o.Fingerprint != "" {
		ev = ev.Str("fingerprint", o.Fingerprint)
	}
	if o.TicketRef != "" {
		ev = ev.Str("ticket_ref", o.TicketRef)
	}
	if o.LastError != "" {
		ev = ev.Str("reason", o.LastError)
	}
	ev.Msg("message finished")
	return o.Status, nil
}

// hold keeps m out of every later drain of this process and logs what an
// operator needs to reconcile it.
func (p *Pipeline) hold(logger *zerolog.Logger, m domain.Message, ticketRef string, err error) {
	p.mu.Lock()
	if p.held == nil {
		p.held = make(map[string]string)
	}
	p.held[m.ID] = ticketRef
	p.mu.Unlock()
	logger.Error().Err(err).Str("ticket_ref", ticketRef).Int("attempts", m.Attempts).
		Msg("outcome not recorded after ticket create; message held until reconciled")
}

func (p *Pipeline) heldRef(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.held[id]
	return ref, ok
}

func (p *Pipeline) keepIntent(id string, in domain.Intent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intents == nil {
		p.intents = make(map[string]domain.Intent)
	}
	p.intents[id] = in
}

// takeIntent returns and forgets the cached classification of id.
func (p *Pipeline) takeIntent(id string) (domain.Intent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.intents[id]
	delete(p.intents, id)
	return in, ok
}

func (p *Pipeline) notify(ctx context.Context, logger *zerolog.Logger, send func(context.Context) error) {
	if p.Notifier == nil {
		return
	}
	if err := send(ctx); err != nil {
		logger.Warn().Err(err).Msg("notification failed")
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// messageText is what the pre-filter and the classifier see.
func messageText(m domain.Message) string {
	subject := strings.TrimSpace(m.Subject)
	body := strings.TrimSpace(m.Body)
	switch {
	case subject == "":
		return body
	case body == "":
		return subject
	}
	return subject + "\n\n" + body
}

// description is the ticket body: the cleaned message text, falling back to
// the raw body when cleaning leaves nothing.
func description(m domain.Message) string {
	if d := prefilter.CleanText(m.Body); d != "" {
		return d
	}
	if b := strings.TrimSpace(m.Body); b != "" {
		return b
	}
	return m.Subject
}

func clipError(err error) string {
	s := err.Error()
	if utf8.RuneCountInString(s) <= maxLastError {
		return s
	}
	return string([]rune(s)[:maxLastError])
}
