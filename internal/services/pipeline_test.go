package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-ticket-intake/internal/dedup"
	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/prefilter"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/ticketing"
	"gorm.io/gorm"
)

var incident = domain.Intent{
	Kind:             domain.KindIncident,
	Category:         "network",
	Subcategory:      "vpn",
	ShortDescription: "VPN disconnects",
	Priority:         domain.PriorityHigh,
}

type pipelineFixture struct {
	db       *gorm.DB
	store    *repo.Store
	clock    *testClock
	cls      *fakeClassifier
	tickets  *fakeTickets
	notifier *fakeNotifier
	p        *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := newSvcDB(t)
	clock := newClock()
	store := repo.NewStore(db)
	store.Now = clock.Now
	f := &pipelineFixture{
		db:       db,
		store:    store,
		clock:    clock,
		cls:      &fakeClassifier{intent: incident},
		tickets:  &fakeTickets{ident: ticketing.Identity{Ref: "sys-user-1"}},
		notifier: &fakeNotifier{},
	}
	f.p = &Pipeline{
		Store:      store,
		Filter:     prefilter.New(nil),
		Classifier: f.cls,
		Ledger:     dedup.NewSQLLedger(store, dedup.DefaultWindow),
		Tickets:    f.tickets,
		Notifier:   f.notifier,
		Now:        clock.Now,
	}
	return f
}

func (f *pipelineFixture) drain(t *testing.T) DrainResult {
	t.Helper()
	res, err := f.p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return res
}

func TestPipeline_HappyPath(t *testing.T) {
	f := newPipelineFixture(t)
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN down", "The VPN drops.\n\nRegards,\nJane")

	res := f.drain(t)
	if res.Fetched != 1 || res.Statuses[domain.StatusProcessed] != 1 {
		t.Fatalf("unexpected drain result: %+v", res)
	}

	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusProcessed || got.TicketRef == nil || *got.TicketRef != "INC0000001" {
		t.Fatalf("message not processed: %+v", got)
	}
	if got.Intent == nil || got.Intent.Kind != domain.KindIncident || got.Fingerprint == nil {
		t.Fatalf("intent/fingerprint not stored: %+v", got)
	}
	if n, _ := repo.CountTickets(context.Background(), f.db); n != 1 {
		t.Fatalf("want 1 ticket row, got %d", n)
	}

	if len(f.tickets.tables) != 1 || f.tickets.tables[0] != ticketing.TableIncident {
		t.Fatalf("unexpected create calls: %v", f.tickets.tables)
	}
	p := f.tickets.payloads[0].(ticketing.IncidentPayload)
	if p.CallerID != "sys-user-1" || p.Impact != "1" || p.Urgency != "1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Description != "The VPN drops." {
		t.Fatalf("description should be cleaned, got %q", p.Description)
	}
	if p.CorrelationID != ticketing.CorrelationToken(m.MessageID, 0) {
		t.Fatalf("correlation id = %q", p.CorrelationID)
	}
	if len(f.notifier.created) != 1 || f.notifier.created[0] != (sent{"jane@example.com", "INC0000001"}) {
		t.Fatalf("unexpected notifications: %+v", f.notifier.created)
	}

	// Nothing left to do.
	if res := f.drain(t); res.Fetched != 0 {
		t.Fatalf("second drain should be empty: %+v", res)
	}
}

func TestPipeline_DuplicateWithinWindow(t *testing.T) {
	f := newPipelineFixture(t)
	first := seedMsg(t, f.db, 1, "jane@example.com", "VPN down", "help")
	f.drain(t)

	f.clock.Advance(2 * 24 * time.Hour)
	second := seedMsg(t, f.db, 2, "JANE@example.com ", " vpn DOWN", "still broken")
	res := f.drain(t)
	if res.Statuses[domain.StatusDuplicate] != 1 {
		t.Fatalf("want duplicate, got %+v", res)
	}
	got := reload(t, f.db, second.ID)
	if got.Status != domain.StatusDuplicate || got.TicketRef == nil || *got.TicketRef != "INC0000001" {
		t.Fatalf("duplicate should reference the open ticket: %+v", got)
	}
	if *got.Fingerprint != *reload(t, f.db, first.ID).Fingerprint {
		t.Fatalf("fingerprints differ")
	}
	if len(f.tickets.tables) != 1 {
		t.Fatalf("duplicate must not create a ticket")
	}
	if len(f.notifier.created) != 1 || len(f.notifier.dups) != 0 {
		t.Fatalf("duplicates are silent by default: %+v %+v", f.notifier.created, f.notifier.dups)
	}
}

func TestPipeline_DuplicateNotifiesWhenEnabled(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.NotifyDuplicates = true
	seedMsg(t, f.db, 1, "jane@example.com", "VPN down", "help")
	f.drain(t)
	seedMsg(t, f.db, 2, "jane@example.com", "VPN down", "again")
	f.drain(t)
	if len(f.notifier.dups) != 1 || f.notifier.dups[0].ref != "INC0000001" {
		t.Fatalf("want duplicate notification, got %+v", f.notifier.dups)
	}
}

func TestPipeline_QuietCreatedSkipsNotice(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.QuietCreated = true
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN down", "help")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("want processed, got %s", got.Status)
	}
	if len(f.notifier.created) != 0 {
		t.Fatalf("no notice expected, got %+v", f.notifier.created)
	}
}

func TestPipeline_WindowExpiry(t *testing.T) {
	f := newPipelineFixture(t)
	seedMsg(t, f.db, 1, "jane@example.com", "VPN down", "help")
	f.drain(t)

	f.clock.Advance(dedup.DefaultWindow + time.Hour)
	m := seedMsg(t, f.db, 2, "jane@example.com", "VPN down", "again")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("outside the window a new ticket is expected, got %s", got.Status)
	}
	if len(f.tickets.tables) != 2 {
		t.Fatalf("want 2 creates, got %d", len(f.tickets.tables))
	}
}

func TestPipeline_DifferentKindIsNotDuplicate(t *testing.T) {
	f := newPipelineFixture(t)
	seedMsg(t, f.db, 1, "jane@example.com", "Laptop", "broken")
	f.drain(t)
	f.cls.intent = domain.Intent{Kind: domain.KindServiceRequest, ShortDescription: "new laptop"}
	m := seedMsg(t, f.db, 2, "jane@example.com", "Laptop", "need a new one")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("different kind must not dedup, got %s", got.Status)
	}
	if f.tickets.tables[1] != ticketing.TableServiceRequest {
		t.Fatalf("want sc_request, got %s", f.tickets.tables[1])
	}
}

func TestPipeline_Ignored(t *testing.T) {
	f := newPipelineFixture(t)
	bulk := seedMsg(t, f.db, 1, "news@vendor.com", "Weekly digest", "Click to unsubscribe")
	empty := seedMsg(t, f.db, 2, "x@example.com", "", "   ")
	f.drain(t)
	if f.cls.calls != 0 {
		t.Fatalf("pre-filtered messages must not be classified")
	}
	for _, id := range []string{bulk.ID, empty.ID} {
		if got := reload(t, f.db, id); got.Status != domain.StatusIgnored {
			t.Fatalf("want ignored, got %s", got.Status)
		}
	}

	f.cls.intent = domain.Intent{Kind: domain.KindIgnore}
	m := seedMsg(t, f.db, 3, "bob@example.com", "Thanks!", "All good now")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusIgnored || got.Fingerprint != nil {
		t.Fatalf("ignore intent: %+v", got)
	}
	if len(f.tickets.tables) != 0 || len(f.notifier.created) != 0 {
		t.Fatalf("ignored messages must have no side effects")
	}

	// An ignored message never counts for dedup.
	f.cls.intent = incident
	again := seedMsg(t, f.db, 4, "bob@example.com", "Thanks!", "Actually the VPN is down")
	f.drain(t)
	if got := reload(t, f.db, again.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("want processed, got %s", got.Status)
	}
}

func TestPipeline_ClassificationError(t *testing.T) {
	f := newPipelineFixture(t)
	f.cls.err = errors.New("model timeout")
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)
	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusErrorClassification || !strings.Contains(got.LastError, "model timeout") {
		t.Fatalf("unexpected: %+v", got)
	}
	// Terminal: never picked up again automatically.
	f.cls.err = nil
	if res := f.drain(t); res.Fetched != 0 {
		t.Fatalf("terminal messages must not be re-fetched")
	}
}

func TestPipeline_NoRequester(t *testing.T) {
	f := newPipelineFixture(t)
	f.tickets.identErr = ticketing.ErrIdentityNotFound
	m := seedMsg(t, f.db, 1, "stranger@example.com", "VPN", "down")
	f.drain(t)
	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusErrorNoRequester {
		t.Fatalf("want error_no_requester, got %s", got.Status)
	}
	if len(f.tickets.tables) != 0 {
		t.Fatalf("no ticket must be created")
	}
}

func TestPipeline_IdentityLookupTemporaryFailureDefers(t *testing.T) {
	f := newPipelineFixture(t)
	f.tickets.identErr = &ticketing.TicketSystemError{Op: "lookup_user", Status: 503, Body: "down"}
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	res := f.drain(t)
	if res.Deferred != 1 {
		t.Fatalf("want 1 deferred, got %+v", res)
	}
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusUnprocessed {
		t.Fatalf("want unprocessed, got %s", got.Status)
	}

	f.tickets.identErr = nil
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("retry should succeed, got %s", got.Status)
	}
}

func TestPipeline_IdentityLookupRejectedIsTerminal(t *testing.T) {
	f := newPipelineFixture(t)
	f.tickets.identErr = &ticketing.TicketSystemError{Op: "lookup_user", Status: 401, Body: "unauthorized"}
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusErrorTicketSystem {
		t.Fatalf("want error_ticket_system, got %s", got.Status)
	}
}

func TestPipeline_TicketSystemError(t *testing.T) {
	f := newPipelineFixture(t)
	f.tickets.createErr = &ticketing.TicketSystemError{Op: "create", Status: 500, Body: "boom"}
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)
	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusErrorTicketSystem || !strings.Contains(got.LastError, "status 500") {
		t.Fatalf("unexpected: %+v", got)
	}
	if len(f.tickets.tables) != 1 {
		t.Fatalf("create must be attempted exactly once, got %d", len(f.tickets.tables))
	}
	if res := f.drain(t); res.Fetched != 0 {
		t.Fatalf("error_ticket_system must not be re-enqueued")
	}
	if len(f.notifier.created) != 0 {
		t.Fatalf("no notification on failure")
	}
}

type failingRecordStore struct {
	*repo.Store
	err error
}

func (s failingRecordStore) RecordTicket(context.Context, *domain.Ticket, *domain.Intent) error {
	return s.err
}

func TestPipeline_PersistFailureIsReconciliationGap(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.Store = failingRecordStore{Store: f.store, err: errors.New("database is locked")}
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	res := f.drain(t)
	if res.Statuses[domain.StatusErrorReconciliation] != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusErrorReconciliation || got.TicketRef == nil || *got.TicketRef != "INC0000001" {
		t.Fatalf("reconciliation record must carry the upstream ref: %+v", got)
	}
	if !strings.Contains(got.LastError, "INC0000001") {
		t.Fatalf("last error should name the ticket: %q", got.LastError)
	}
	if len(f.notifier.created) != 0 {
		t.Fatalf("no notification for an unrecorded ticket")
	}
}

func TestPipeline_NotifyFailureDoesNotChangeOutcome(t *testing.T) {
	f := newPipelineFixture(t)
	f.notifier.err = errors.New("smtp down")
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("want processed, got %s", got.Status)
	}
}

func TestPipeline_NilNotifier(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.Notifier = nil
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("want processed, got %s", got.Status)
	}
}

func TestPipeline_PoisonedMessageDoesNotAbortBatch(t *testing.T) {
	f := newPipelineFixture(t)
	f.cls.panicOn = "Poison"
	bad := seedMsg(t, f.db, 1, "a@example.com", "Poison pill", "x")
	good := seedMsg(t, f.db, 2, "b@example.com", "Printer", "jammed")
	res := f.drain(t)
	if res.Deferred != 1 || res.Statuses[domain.StatusProcessed] != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := reload(t, f.db, bad.ID); got.Status != domain.StatusUnprocessed {
		t.Fatalf("panicked message stays unprocessed, got %s", got.Status)
	}
	if got := reload(t, f.db, good.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("batch must continue, got %s", got.Status)
	}
}

func TestPipeline_ResetBumpsCorrelation(t *testing.T) {
	f := newPipelineFixture(t)
	f.tickets.createErr = errors.New("timeout")
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	f.drain(t)

	if _, err := f.store.ResetMessage(context.Background(), m.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.tickets.createErr = nil
	f.drain(t)
	p0 := f.tickets.payloads[0].(ticketing.IncidentPayload)
	p1 := f.tickets.payloads[1].(ticketing.IncidentPayload)
	if p0.CorrelationID == p1.CorrelationID || p1.CorrelationID != ticketing.CorrelationToken(m.MessageID, 1) {
		t.Fatalf("correlation must change per attempt: %q %q", p0.CorrelationID, p1.CorrelationID)
	}
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.Interval = 5 * time.Millisecond
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := f.p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("first cycle should run immediately, got %s", got.Status)
	}
}

func TestPipeline_ShutdownAfterCreateStillRecords(t *testing.T) {
	f := newPipelineFixture(t)
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.tickets.onCreate = cancel
	if _, err := f.p.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain should report the cancellation, got %v", err)
	}

	got := reload(t, f.db, m.ID)
	if got.Status != domain.StatusProcessed || got.TicketRef == nil || *got.TicketRef != "INC0000001" {
		t.Fatalf("created ticket must be recorded despite shutdown: %+v", got)
	}
	if n, _ := repo.CountTickets(context.Background(), f.db); n != 1 {
		t.Fatalf("want 1 ticket row, got %d", n)
	}

	// A restarted pipeline has nothing left to create.
	f.tickets.onCreate = nil
	if res := f.drain(t); res.Fetched != 0 {
		t.Fatalf("message re-listed after shutdown: %+v", res)
	}
	if len(f.tickets.tables) != 1 {
		t.Fatalf("ticket created %d times for one message", len(f.tickets.tables))
	}
}

func TestPipeline_ShutdownDuringFailedCreateIsTerminal(t *testing.T) {
	f := newPipelineFixture(t)
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.tickets.onCreate = cancel
	f.tickets.createErr = context.Canceled
	_, _ = f.p.Drain(ctx)

	if got := reload(t, f.db, m.ID); got.Status != domain.StatusErrorTicketSystem {
		t.Fatalf("ambiguous create must end terminal, got %s", got.Status)
	}
}

type brokenOutcomeStore struct {
	*repo.Store
}

func (brokenOutcomeStore) RecordTicket(context.Context, *domain.Ticket, *domain.Intent) error {
	return errors.New("disk I/O error")
}

func (brokenOutcomeStore) MarkOutcome(context.Context, string, repo.Outcome) error {
	return errors.New("disk I/O error")
}

func TestPipeline_UnrecordedCreateIsHeld(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.Store = brokenOutcomeStore{Store: f.store}
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")

	if res := f.drain(t); res.Deferred != 1 {
		t.Fatalf("unexpected first drain: %+v", res)
	}
	if got := reload(t, f.db, m.ID); got.Status != domain.StatusUnprocessed {
		t.Fatalf("store is down, status cannot change: %s", got.Status)
	}

	res := f.drain(t)
	if res.Fetched != 1 || res.Held != 1 {
		t.Fatalf("message should be held: %+v", res)
	}
	if len(f.tickets.tables) != 1 {
		t.Fatalf("held message must not be created again, got %d creates", len(f.tickets.tables))
	}
}

func TestPipeline_DeferredMessageKeepsClassification(t *testing.T) {
	f := newPipelineFixture(t)
	ledger := &flakyLedger{Ledger: f.p.Ledger, err: errors.New("redis: connection refused")}
	f.p.Ledger = ledger
	m := seedMsg(t, f.db, 1, "jane@example.com", "VPN", "down")

	if res := f.drain(t); res.Deferred != 1 {
		t.Fatalf("want deferred, got %+v", res)
	}
	ledger.err = nil
	f.drain(t)

	if got := reload(t, f.db, m.ID); got.Status != domain.StatusProcessed {
		t.Fatalf("want processed, got %s", got.Status)
	}
	if f.cls.calls != 1 {
		t.Fatalf("classifier called %d times; want 1", f.cls.calls)
	}
}
