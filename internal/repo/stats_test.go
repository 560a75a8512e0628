package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

func TestMessagesStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, _, err := MessagesStats(context.Background(), db, ""); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestMessagesStats_ZeroRows(t *testing.T) {
	db := newMigratedDB(t)
	count, maxAt, err := MessagesStats(context.Background(), db, domain.StatusProcessed)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}
}

func TestMessagesStats_CountAndLatest(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	seedMessage(t, db, "<s1>", 1, domain.StatusUnprocessed)
	time.Sleep(5 * time.Millisecond)
	last := seedMessage(t, db, "<s2>", 2, domain.StatusUnprocessed)

	count, maxAt, err := MessagesStats(ctx, db, domain.StatusUnprocessed)
	if err != nil || count != 2 || maxAt == nil {
		t.Fatalf("unexpected stats: %d %v %v", count, maxAt, err)
	}
	if maxAt.Before(last.UpdatedAt.Add(-time.Millisecond)) {
		t.Fatalf("maxUpdatedAt %v older than last row %v", maxAt, last.UpdatedAt)
	}
}

func TestStatusCounts_IncludesZeroes(t *testing.T) {
	db := newMigratedDB(t)
	seedMessage(t, db, "<c1>", 1, domain.StatusUnprocessed)
	seedMessage(t, db, "<c2>", 2, domain.StatusDuplicate)
	seedMessage(t, db, "<c3>", 3, domain.StatusDuplicate)

	got, err := StatusCounts(context.Background(), db)
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if got[domain.StatusUnprocessed] != 1 || got[domain.StatusDuplicate] != 2 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if v, ok := got[domain.StatusErrorReconciliation]; !ok || v != 0 {
		t.Fatalf("expected zero entry for error_reconciliation: %+v", got)
	}
}
