package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2/clientcredentials"
)

// maxErrBody caps how much of an upstream error body is kept.
const maxErrBody = 4 << 10

// Config configures a Client.
type Config struct {
	InstanceURL string
	Username    string
	Password    string

	// OAuth client credentials; when ClientID is set they replace basic auth.
	ClientID     string
	ClientSecret string
	TokenURL     string

	Timeout          time.Duration
	FallbackIdentity string
}

// Identity is a resolved requester.
type Identity struct {
	Ref      string
	Fallback bool
}

// Created is the result of a successful create.
type Created struct {
	Number string
	SysID  string
}

// Client is a ServiceNow table API client. It never retries; a failed call
// is reported once and the caller decides what to do.
type Client struct {
	base     string
	http     *http.Client
	user     string
	pass     string
	fallback string
}

// NewClient builds a client. When OAuth credentials are configured the
// returned client fetches and refreshes tokens itself.
func NewClient(ctx context.Context, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var hc *http.Client
	if cfg.ClientID != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		hc = creds.Client(ctx)
		hc.Timeout = timeout
	} else {
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		base:     strings.TrimRight(cfg.InstanceURL, "/"),
		http:     hc,
		fallback: strings.TrimSpace(cfg.FallbackIdentity),
	}
	if cfg.ClientID == "" {
		c.user, c.pass = cfg.Username, cfg.Password
	}
	return c
}

// Create posts payload to table and returns the ticket number.
func (c *Client) Create(ctx context.Context, table string, payload any) (Created, error) {
	ctx, span := otel.Tracer("ticketing").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("ticket.table", table)))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return Created{}, fmt.Errorf("ticketing: encode payload: %w", err)
	}
	var out struct {
		Result struct {
			Number string `json:"number"`
			SysID  string `json:"sys_id"`
		} `json:"result"`
	}
	if err := c.do(ctx, "create", http.MethodPost, c.base+"/api/now/table/"+url.PathEscape(table), body, &out); err != nil {
		span.RecordError(err)
		return Created{}, err
	}
	if out.Result.Number == "" {
		err := &TicketSystemError{Op: "create", Status: http.StatusOK, Body: "response has no ticket number"}
		span.RecordError(err)
		return Created{}, err
	}
	span.SetAttributes(attribute.String("ticket.number", out.Result.Number))
	return Created{Number: out.Result.Number, SysID: out.Result.SysID}, nil
}

// LookupUser returns the sys_id of the user whose email matches exactly.
// The second return value is false when no user matches. Addresses that
// could change the meaning of the encoded query match nobody and are never
// sent.
func (c *Client) LookupUser(ctx context.Context, email string) (string, bool, error) {
	if !queryableEmail(email) {
		return "", false, nil
	}
	q := url.Values{}
	q.Set("sysparm_query", "email="+email)
	q.Set("sysparm_fields", "sys_id")
	q.Set("sysparm_limit", "1")
	var out struct {
		Result []struct {
			SysID string `json:"sys_id"`
		} `json:"result"`
	}
	if err := c.do(ctx, "lookup_user", http.MethodGet, c.base+"/api/now/table/sys_user?"+q.Encode(), nil, &out); err != nil {
		return "", false, err
	}
	if len(out.Result) == 0 || out.Result[0].SysID == "" {
		return "", false, nil
	}
	return out.Result[0].SysID, true, nil
}

// ResolveIdentity maps an email to a requester: exact match first, then the
// configured fallback identity. ErrIdentityNotFound when both are missing.
// Lookup failures are returned as *TicketSystemError.
func (c *Client) ResolveIdentity(ctx context.Context, email string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email != "" {
		ref, ok, err := c.LookupUser(ctx, email)
		if err != nil {
			return Identity{}, err
		}
		if ok {
			return Identity{Ref: ref}, nil
		}
	}
	if c.fallback != "" {
		return Identity{Ref: c.fallback, Fallback: true}, nil
	}
	return Identity{}, ErrIdentityNotFound
}

// queryableEmail reports whether email is a bare address that is safe to
// embed in a sysparm_query. '^' separates query terms and '=' starts a value,
// both are legal in a local part.
func queryableEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, "^=\\") {
		return false
	}
	for _, r := range email {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	a, err := mail.ParseAddress(email)
	return err == nil && a.Name == "" && strings.EqualFold(a.Address, email)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return &TicketSystemError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TicketSystemError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &TicketSystemError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TicketSystemError{Op: op, Status: resp.StatusCode, Body: "malformed response", Err: err}
	}
	return nil
}
