package mailbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"
)

// IMAPConfig configures an IMAPSource.
type IMAPConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Mailbox  string
	Timeout  time.Duration
}

// defaultIMAPTimeout applies when IMAPConfig.Timeout is unset.
const defaultIMAPTimeout = 30 * time.Second

// IMAPSource fetches messages over IMAPS. A fresh connection is opened per
// fetch; the mailbox is selected read-only and bodies are fetched with
// BODY.PEEK so the \Seen flag is left untouched.
type IMAPSource struct {
	cfg IMAPConfig
}

// NewIMAPSource returns a Source for cfg.
func NewIMAPSource(cfg IMAPConfig) *IMAPSource {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPSource{cfg: cfg}
}

// FetchSince returns every message with UID > after, ordered by UID.
func (s *IMAPSource) FetchSince(ctx context.Context, after uint32) ([]RawMessage, error) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultIMAPTimeout
	}
	// The dialer timeout covers connect, TLS handshake and greeting.
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: timeout}, s.cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap: dial %s: %w", s.cfg.Addr, err)
	}
	c.Timeout = timeout
	defer func() {
		if err := c.Logout(); err != nil {
			log.Debug().Err(err).Msg("imap logout")
		}
	}()

	// Abort the blocking protocol calls when ctx is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Terminate()
		case <-stop:
		}
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap: login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("imap: select %s: %w", s.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(after+1, 0)
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap: uid search: %w", err)
	}
	// "N:*" always matches the highest UID, even when it is below N.
	uids = uidsAfter(uids, after)
	if len(uids) == 0 {
		return nil, ctx.Err()
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- c.UidFetch(seq, items, ch) }()

	out := make([]RawMessage, 0, len(uids))
	for m := range ch {
		if m == nil || m.Uid <= after {
			continue
		}
		body := m.GetBody(section)
		if body == nil {
			log.Warn().Uint32("uid", m.Uid).Msg("imap: message without body")
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("imap: read uid %d: %w", m.Uid, err)
		}
		out = append(out, RawMessage{Position: m.Uid, Raw: raw})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap: uid fetch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func uidsAfter(uids []uint32, after uint32) []uint32 {
	out := uids[:0]
	for _, u := range uids {
		if u > after {
			out = append(out, u)
		}
	}
	return out
}
