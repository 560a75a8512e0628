package mailbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

type fakeSource struct {
	msgs  []RawMessage
	err   error
	calls []uint32
}

func (f *fakeSource) FetchSince(_ context.Context, after uint32) ([]RawMessage, error) {
	f.calls = append(f.calls, after)
	if f.err != nil {
		return nil, f.err
	}
	var out []RawMessage
	for _, m := range f.msgs {
		if m.Position > after {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeStore struct {
	cursor    domain.Cursor
	byMsgID   map[string]*domain.Message
	insertErr map[uint32]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cursor: domain.Cursor{Mailbox: "INBOX"}, byMsgID: map[string]*domain.Message{}}
}

func (s *fakeStore) LoadCursor(context.Context, string) (domain.Cursor, error) { return s.cursor, nil }

func (s *fakeStore) AdvanceCursor(_ context.Context, _ string, pos uint32) error {
	if pos > s.cursor.Position {
		s.cursor.Position = pos
	}
	return nil
}

func (s *fakeStore) CompleteBootstrap(_ context.Context, _ string, pos uint32) (bool, error) {
	if s.cursor.Bootstrapped {
		return false, nil
	}
	s.cursor.Bootstrapped = true
	if pos > s.cursor.Position {
		s.cursor.Position = pos
	}
	return true, nil
}

func (s *fakeStore) InsertMessage(_ context.Context, m *domain.Message) (bool, error) {
	if err := s.insertErr[m.Position]; err != nil {
		return false, err
	}
	if _, ok := s.byMsgID[m.MessageID]; ok {
		return false, nil
	}
	s.byMsgID[m.MessageID] = m
	return true, nil
}

func rawMsg(pos uint32, msgID string) RawMessage {
	hdr := ""
	if msgID != "" {
		hdr = "Message-ID: " + msgID + "\r\n"
	}
	raw := fmt.Sprintf("From: user%d@example.com\r\nSubject: issue %d\r\n%s\r\nbody %d\r\n", pos, pos, hdr, pos)
	return RawMessage{Position: pos, Raw: []byte(raw)}
}

func newPoller(src Source, st Store) *Poller {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Poller{Source: src, Store: st, Mailbox: "INBOX", Now: func() time.Time { return fixed }}
}

func TestPollOnce_BootstrapSkipsBacklog(t *testing.T) {
	src := &fakeSource{msgs: []RawMessage{rawMsg(3, "<a@x>"), rawMsg(9, "<b@x>"), rawMsg(5, "<c@x>")}}
	st := newFakeStore()
	p := newPoller(src, st)

	res, err := p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if !res.Bootstrapped || res.Inserted != 0 || len(st.byMsgID) != 0 {
		t.Fatalf("bootstrap must ingest nothing: %+v", res)
	}
	if st.cursor.Position != 9 || !st.cursor.Bootstrapped {
		t.Fatalf("cursor = %+v; want position 9 bootstrapped", st.cursor)
	}

	src.msgs = append(src.msgs, rawMsg(10, "<d@x>"), rawMsg(11, ""))
	res, err = p.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if res.Inserted != 2 || st.cursor.Position != 11 {
		t.Fatalf("second poll: %+v cursor=%d", res, st.cursor.Position)
	}
	if _, ok := st.byMsgID["<d@x>"]; !ok {
		t.Fatalf("message 10 not stored")
	}
	m := st.byMsgID[SyntheticMessageID("INBOX", 11, rawMsg(11, "").Raw)]
	if m == nil || m.Sender != "user11@example.com" || m.Status != domain.StatusUnprocessed {
		t.Fatalf("synthetic-id message not stored correctly: %+v", m)
	}
	if !m.ReceivedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("missing Date should fall back to now, got %v", m.ReceivedAt)
	}
	if got := src.calls[len(src.calls)-1]; got != 9 {
		t.Fatalf("second fetch should start after 9, got %d", got)
	}
}

func TestPollOnce_DuplicateMessageIDIsSkipped(t *testing.T) {
	st := newFakeStore()
	st.cursor.Bootstrapped = true
	src := &fakeSource{msgs: []RawMessage{rawMsg(1, "<same@x>"), rawMsg(2, "<same@x>")}}
	res, err := newPoller(src, st).PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 || st.cursor.Position != 2 {
		t.Fatalf("unexpected result %+v cursor=%d", res, st.cursor.Position)
	}
}

func TestPollOnce_InsertFailureStopsBeforeCursor(t *testing.T) {
	st := newFakeStore()
	st.cursor.Bootstrapped = true
	st.insertErr = map[uint32]error{3: errors.New("disk full")}
	src := &fakeSource{msgs: []RawMessage{rawMsg(2, "<a@x>"), rawMsg(3, "<b@x>"), rawMsg(4, "<c@x>")}}

	_, err := newPoller(src, st).PollOnce(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if st.cursor.Position != 2 {
		t.Fatalf("cursor must stop at last stored message, got %d", st.cursor.Position)
	}
	if _, ok := st.byMsgID["<c@x>"]; ok {
		t.Fatalf("messages after the failure must not be stored")
	}
}

func TestPollOnce_FetchError(t *testing.T) {
	st := newFakeStore()
	st.cursor.Bootstrapped = true
	boom := errors.New("connection refused")
	_, err := newPoller(&fakeSource{err: boom}, st).PollOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped fetch error, got %v", err)
	}
}

func TestPollOnce_UnparseableAdvancesCursor(t *testing.T) {
	st := newFakeStore()
	st.cursor.Bootstrapped = true
	src := &fakeSource{msgs: []RawMessage{{Position: 5, Raw: []byte("   ")}}}
	res, err := newPoller(src, st).PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if res.Skipped != 1 || st.cursor.Position != 5 {
		t.Fatalf("unexpected %+v cursor=%d", res, st.cursor.Position)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := newFakeStore()
	var errs int
	p := newPoller(&fakeSource{err: errors.New("down")}, st)
	p.Interval = 5 * time.Millisecond
	p.OnError = func(error) { errs++ }
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if errs == 0 {
		t.Fatalf("expected poll errors to be reported")
	}
}

func TestUidsAfter(t *testing.T) {
	got := uidsAfter([]uint32{5}, 7)
	if len(got) != 0 {
		t.Fatalf("N:* quirk must be filtered, got %v", got)
	}
	got = uidsAfter([]uint32{8, 9}, 7)
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}
