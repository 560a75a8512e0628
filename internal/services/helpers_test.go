package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ticket-intake/internal/dedup"
	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/ticketing"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seedMsg(t *testing.T, db *gorm.DB, pos uint32, sender, subject, body string) *domain.Message {
	t.Helper()
	m := &domain.Message{
		MessageID:  fmt.Sprintf("<m%d@example.com>", pos),
		Position:   pos,
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
	if _, err := repo.InsertMessage(context.Background(), db, m); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

func reload(t *testing.T, db *gorm.DB, id string) *domain.Message {
	t.Helper()
	m, err := repo.GetMessage(context.Background(), db, id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return m
}

// ---------- fakes ----------

type flakyLedger struct {
	dedup.Ledger
	err error
}

func (l *flakyLedger) Seen(ctx context.Context, fp string, now time.Time) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.Ledger.Seen(ctx, fp, now)
}

type fakeClassifier struct {
	intent  domain.Intent
	err     error
	panicOn string // subject that triggers a panic
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (domain.Intent, error) {
	f.calls++
	if f.panicOn != "" && strings.HasPrefix(text, f.panicOn) {
		panic("classifier exploded")
	}
	return f.intent, f.err
}

type fakeTickets struct {
	ident     ticketing.Identity
	identErr  error
	createErr error
	onCreate  func() // runs after each create call
	seq       int
	tables    []string
	payloads  []any
	lookups   []string
}

func (f *fakeTickets) ResolveIdentity(_ context.Context, email string) (ticketing.Identity, error) {
	f.lookups = append(f.lookups, email)
	if f.identErr != nil {
		return ticketing.Identity{}, f.identErr
	}
	return f.ident, nil
}

func (f *fakeTickets) Create(_ context.Context, table string, payload any) (ticketing.Created, error) {
	f.tables = append(f.tables, table)
	f.payloads = append(f.payloads, payload)
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return ticketing.Created{}, f.createErr
	}
	f.seq++
	return ticketing.Created{Number: fmt.Sprintf("INC%07d", f.seq), SysID: fmt.Sprintf("sys%d", f.seq)}, nil
}

type sent struct{ to, ref string }

type fakeNotifier struct {
	created []sent
	dups    []sent
	err     error
}

func (f *fakeNotifier) TicketCreated(_ context.Context, to, ref string) error {
	f.created = append(f.created, sent{to, ref})
	return f.err
}

func (f *fakeNotifier) DuplicateReported(_ context.Context, to, ref string) error {
	f.dups = append(f.dups, sent{to, ref})
	return f.err
}
