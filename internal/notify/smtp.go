// Package notify sends plain-text replies to requesters.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

// sendMail is the delivery function; tests replace it.
var sendMail = deliver

// SMTPNotifier delivers notifications through an SMTP relay. Port 465 uses
// implicit TLS; any other port uses STARTTLS when offered.
type SMTPNotifier struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTPNotifier returns a notifier for the given relay.
func NewSMTPNotifier(host string, port int, user, pass, from string) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, user: user, pass: pass, from: from}
}

// TicketCreated tells the requester which ticket was opened for them.
func (n *SMTPNotifier) TicketCreated(ctx context.Context, to, ticketRef string) error {
	subject := "Ticket Created – " + ticketRef
	body := fmt.Sprintf("Hi,\n\nYour ticket has been created.\n\nTicket Number: %s\n\nIT Support\n", ticketRef)
	return n.send(ctx, to, subject, body)
}

// DuplicateReported tells the requester their message matched an open ticket.
func (n *SMTPNotifier) DuplicateReported(ctx context.Context, to, ticketRef string) error {
	subject := "Already Tracked – " + ticketRef
	body := fmt.Sprintf("Hi,\n\nWe already have an open ticket for this request.\n\nTicket Number: %s\n\nIT Support\n", ticketRef)
	return n.send(ctx, to, subject, body)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := compose(n.from, to, subject, body, time.Now())
	if err != nil {
		return fmt.Errorf("notify: compose: %w", err)
	}
	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	var auth smtp.Auth
	if n.user != "" {
		auth = smtp.PlainAuth("", n.user, n.pass, n.host)
	}
	if err := sendMail(addr, auth, n.from, []string{to}, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", to, err)
	}
	return nil
}

// compose renders an RFC 5322 message with encoded headers.
func compose(from, to, subject, body string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deliver(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, port, _ := net.SplitHostPort(addr)
	if port != "465" {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
