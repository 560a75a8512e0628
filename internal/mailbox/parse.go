package mailbox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
)

const maxPartBytes = 1 << 20

// ErrEmptyMessage is returned for a zero-length payload.
var ErrEmptyMessage = errors.New("mailbox: empty message")

// Parse decodes an RFC 5322 message. The body is the text/plain part when
// one exists, otherwise the visible text of the first text/html part.
// Unknown charsets are tolerated; the raw bytes are used instead.
func Parse(raw []byte) (Parsed, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Parsed{}, ErrEmptyMessage
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Parsed{}, fmt.Errorf("mailbox: read header: %w", err)
	}
	defer mr.Close()

	var p Parsed
	h := mr.Header
	if s, err := h.Subject(); err == nil {
		p.Subject = strings.TrimSpace(s)
	} else {
		p.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		p.Sender = strings.ToLower(from[0].Address)
	} else {
		p.Sender = ExtractAddress(h.Get("From"))
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		p.MessageID = "<" + id + ">"
	} else if v := strings.TrimSpace(h.Get("Message-Id")); v != "" {
		p.MessageID = v
	}
	if d, err := h.Date(); err == nil && !d.IsZero() {
		p.ReceivedAt = d.UTC()
	}

	var plain, htmlText []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Parsed{}, fmt.Errorf("mailbox: read part: %w", err)
		}
		if part == nil {
			break
		}
		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		body, err := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
		if err != nil {
			return Parsed{}, fmt.Errorf("mailbox: read body: %w", err)
		}
		switch strings.ToLower(ct) {
		case "text/plain", "":
			if t := strings.TrimSpace(string(body)); t != "" {
				plain = append(plain, t)
			}
		case "text/html":
			if t := HTMLText(string(body)); t != "" {
				htmlText = append(htmlText, t)
			}
		}
	}
	switch {
	case len(plain) > 0:
		p.Body = strings.Join(plain, "\n\n")
	case len(htmlText) > 0:
		p.Body = strings.Join(htmlText, "\n\n")
	}
	return p, nil
}

// SyntheticMessageID derives a stable identifier for messages that carry
// no Message-ID header, so re-fetching them stays idempotent.
func SyntheticMessageID(mailbox string, pos uint32, raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("<%s.%d.%s@intake.local>", strings.ToLower(mailbox), pos, hex.EncodeToString(sum[:8]))
}

// HTMLText returns the visible text of an HTML fragment. Script and style
// contents are dropped; block elements become line breaks.
func HTMLText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return normalizeLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "table":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func receivedOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
