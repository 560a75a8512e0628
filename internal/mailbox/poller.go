package mailbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// Store is the persistence the poller needs.
type Store interface {
	LoadCursor(ctx context.Context, mailbox string) (domain.Cursor, error)
	AdvanceCursor(ctx context.Context, mailbox string, pos uint32) error
	CompleteBootstrap(ctx context.Context, mailbox string, pos uint32) (bool, error)
	InsertMessage(ctx context.Context, m *domain.Message) (bool, error)
}

// PollResult summarizes one poll.
type PollResult struct {
	Fetched      int
	Inserted     int
	Skipped      int // already known or unparseable
	Bootstrapped bool
	Cursor       uint32
}

// Poller appends new mailbox messages to the store. On the very first poll
// of a mailbox it only records the current high-water mark, so the backlog
// present at deployment time is never ingested.
type Poller struct {
	Source   Source
	Store    Store
	Mailbox  string
	Interval time.Duration
	Now      func() time.Time
	// OnError is called for every failed poll (metrics hook).
	OnError func(error)
}

// PollOnce runs a single fetch-and-append cycle. The cursor advances after
// each stored message, so a failure part way through resumes from the last
// stored position.
func (p *Poller) PollOnce(ctx context.Context) (PollResult, error) {
	var res PollResult
	cur, err := p.Store.LoadCursor(ctx, p.Mailbox)
	if err != nil {
		return res, fmt.Errorf("load cursor: %w", err)
	}
	res.Cursor = cur.Position

	msgs, err := p.Source.FetchSince(ctx, cur.Position)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Position < msgs[j].Position })
	res.Fetched = len(msgs)

	if !cur.Bootstrapped {
		high := cur.Position
		for _, m := range msgs {
			if m.Position > high {
				high = m.Position
			}
		}
		done, err := p.Store.CompleteBootstrap(ctx, p.Mailbox, high)
		if err != nil {
			return res, fmt.Errorf("bootstrap: %w", err)
		}
		res.Bootstrapped = done
		res.Cursor = high
		log.Info().Str("mailbox", p.Mailbox).Uint32("cursor", high).Int("backlog", len(msgs)).
			Msg("mailbox bootstrapped; existing backlog skipped")
		return res, nil
	}

	for _, rm := range msgs {
		if rm.Position <= cur.Position {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m, ok := p.toMessage(rm)
		if ok {
			created, err := p.Store.InsertMessage(ctx, m)
			if err != nil {
				return res, fmt.Errorf("insert uid %d: %w", rm.Position, err)
			}
			if created {
				res.Inserted++
				log.Info().Str("message_id", m.MessageID).Str("sender", m.Sender).
					Uint32("uid", rm.Position).Msg("message ingested")
			} else {
				res.Skipped++
			}
		} else {
			res.Skipped++
		}
		if err := p.Store.AdvanceCursor(ctx, p.Mailbox, rm.Position); err != nil {
			return res, fmt.Errorf("advance cursor: %w", err)
		}
		res.Cursor = rm.Position
	}
	return res, nil
}

func (p *Poller) toMessage(rm RawMessage) (*domain.Message, bool) {
	parsed, err := Parse(rm.Raw)
	if err != nil {
		log.Warn().Err(err).Uint32("uid", rm.Position).Msg("unparseable message skipped")
		return nil, false
	}
	now := p.now()
	id := parsed.MessageID
	if id == "" {
		id = SyntheticMessageID(p.Mailbox, rm.Position, rm.Raw)
	}
	return &domain.Message{
		ID:         uuid.NewString(),
		MessageID:  id,
		Position:   rm.Position,
		Sender:     parsed.Sender,
		Subject:    parsed.Subject,
		Body:       parsed.Body,
		ReceivedAt: receivedOr(parsed.ReceivedAt, now),
		Status:     domain.StatusUnprocessed,
	}, true
}

// Run polls immediately and then every Interval until ctx is cancelled.
// Poll failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p.tick(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	res, err := p.PollOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Str("mailbox", p.Mailbox).Msg("mailbox poll failed")
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}
	if res.Inserted > 0 || res.Bootstrapped {
		log.Debug().Int("fetched", res.Fetched).Int("inserted", res.Inserted).
			Uint32("cursor", res.Cursor).Msg("mailbox poll")
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
