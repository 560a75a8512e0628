package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc, fallback string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), Config{
		InstanceURL:      srv.URL + "/",
		Username:         "svc",
		Password:         "secret",
		Timeout:          2 * time.Second,
		FallbackIdentity: fallback,
	})
}

func TestCreate_Success(t *testing.T) {
	var gotPath, gotCT string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		if u, p, ok := r.BasicAuth(); !ok || u != "svc" || p != "secret" {
			t.Errorf("missing basic auth")
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":{"number":"INC0010042","sys_id":"abc123"}}`))
	}, "")

	res, err := c.Create(context.Background(), TableIncident, IncidentPayload{ShortDescription: "VPN down", Impact: "1", Urgency: "1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Number != "INC0010042" || res.SysID != "abc123" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotPath != "/api/now/table/incident" || gotCT != "application/json" {
		t.Fatalf("unexpected request: path=%q ct=%q", gotPath, gotCT)
	}
	if gotBody["short_description"] != "VPN down" || gotBody["impact"] != "1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestCreate_UpstreamErrorCarriesStatusAndBody(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}, "")

	_, err := c.Create(context.Background(), TableIncident, IncidentPayload{})
	var tse *TicketSystemError
	if !errors.As(err, &tse) {
		t.Fatalf("expected *TicketSystemError, got %T %v", err, err)
	}
	if tse.Status != http.StatusServiceUnavailable || !strings.Contains(tse.Body, "maintenance") || tse.Transport() || !tse.Temporary() {
		t.Fatalf("unexpected error: %+v", tse)
	}
	if calls != 1 {
		t.Fatalf("client must not retry, got %d calls", calls)
	}
}

func TestCreate_MissingNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	}, "")
	if _, err := c.Create(context.Background(), TableIncident, IncidentPayload{}); err == nil {
		t.Fatalf("expected error for missing number")
	}
}

func TestCreate_Transport(t *testing.T) {
	c := NewClient(context.Background(), Config{InstanceURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := c.Create(context.Background(), TableIncident, IncidentPayload{})
	var tse *TicketSystemError
	if !errors.As(err, &tse) || !tse.Transport() || !tse.Temporary() {
		t.Fatalf("expected transport TicketSystemError, got %v", err)
	}
	if (&TicketSystemError{Status: 401}).Temporary() {
		t.Fatalf("401 must not be temporary")
	}
}

func TestResolveIdentity(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/now/table/sys_user" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("sysparm_query") == "email=alice@example.com" {
			_, _ = w.Write([]byte(`{"result":[{"sys_id":"sys-alice"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}

	c := newTestClient(t, h, "sys-fallback")
	id, err := c.ResolveIdentity(context.Background(), "alice@example.com")
	if err != nil || id.Ref != "sys-alice" || id.Fallback {
		t.Fatalf("exact match: %+v err=%v", id, err)
	}
	id, err = c.ResolveIdentity(context.Background(), "stranger@example.com")
	if err != nil || id.Ref != "sys-fallback" || !id.Fallback {
		t.Fatalf("fallback: %+v err=%v", id, err)
	}

	c2 := newTestClient(t, h, "")
	if _, err := c2.ResolveIdentity(context.Background(), "stranger@example.com"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestResolveIdentity_QueryOperatorsNeverSent(t *testing.T) {
	var queries []string
	h := func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("sysparm_query"))
		_, _ = w.Write([]byte(`{"result":[{"sys_id":"admin-sys-id"}]}`))
	}
	c := newTestClient(t, h, "")
	fb := newTestClient(t, h, "sys-fallback")

	for _, addr := range []string{
		"x^ORemailISNOTEMPTY@evil.example",
		"a=b@evil.example",
		"x@evil.example^NQactive=true",
		"Jane <jane@example.com>",
		"not an address",
		"jane@example.com\r\nX: y",
	} {
		if id, err := c.ResolveIdentity(context.Background(), addr); !errors.Is(err, ErrIdentityNotFound) {
			t.Fatalf("%q resolved to %+v err=%v", addr, id, err)
		}
		if id, err := fb.ResolveIdentity(context.Background(), addr); err != nil || id.Ref != "sys-fallback" || !id.Fallback {
			t.Fatalf("%q with fallback: %+v err=%v", addr, id, err)
		}
	}
	if len(queries) != 0 {
		t.Fatalf("unsafe addresses reached the ticket system: %q", queries)
	}

	if id, err := c.ResolveIdentity(context.Background(), "o'brien+it@example.com"); err != nil || id.Ref != "admin-sys-id" {
		t.Fatalf("legal address rejected: %+v err=%v", id, err)
	}
}

func TestResolveIdentity_LookupFailureSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, "sys-fallback")
	_, err := c.ResolveIdentity(context.Background(), "alice@example.com")
	var tse *TicketSystemError
	if !errors.As(err, &tse) || tse.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 TicketSystemError, got %v", err)
	}
}

func TestNewClient_OAuthUsesBearerToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":{"number":"REQ001","sys_id":"s"}}`))
	}))
	t.Cleanup(api.Close)

	c := NewClient(context.Background(), Config{
		InstanceURL:  api.URL,
		Username:     "ignored",
		ClientID:     "cid",
		ClientSecret: "csecret",
		TokenURL:     tokenSrv.URL,
		Timeout:      2 * time.Second,
	})
	if _, err := c.Create(context.Background(), TableServiceRequest, ServiceRequestPayload{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if auth != "Bearer tok-1" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
}
