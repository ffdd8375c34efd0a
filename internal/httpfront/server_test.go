// ABOUTME: Tests for the HTTP front end over a real engine and in-memory backend.
// ABOUTME: Covers routing toggles, the simple dyndns endpoint and the JSON API.

package httpfront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/engine"
	"github.com/mauromedda/dnsupd/internal/record"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *backend.Memory) {
	t.Helper()
	m, err := backend.NewMemory("")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(m.Stop)
	if err := m.CreateZone("example.org", "s3cret"); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 300
	}
	return New(engine.New(m), cfg, nil), m
}

func get(h http.Handler, target string, auth func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != nil {
		auth(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func basicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func TestRoutingToggles(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Config{Simple: false, Updates: false, Welcome: false})
	h := s.Handler()

	if rec := get(h, "/dnsup/v1/simple?hostname=www.example.org", basicAuth("example.org", "s3cret")); rec.Code != http.StatusNotFound {
		t.Errorf("disabled simple endpoint: status %d, want 404", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/dnsup/v1/update", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled update endpoint: status %d, want 404", rec.Code)
	}
	if rec := get(h, "/", nil); rec.Code != http.StatusNotFound {
		t.Errorf("disabled welcome: status %d, want 404", rec.Code)
	}

	// Health and metrics are always routed.
	if rec := get(h, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: status %d, want 200", rec.Code)
	}
	if rec := get(h, "/metrics", nil); rec.Code != http.StatusOK {
		t.Errorf("metrics: status %d, want 200", rec.Code)
	}
}

func TestWelcome(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Config{Welcome: true})
	h := s.Handler()

	rec := get(h, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dnsupd") {
		t.Errorf("welcome body does not identify the service: %q", rec.Body.String())
	}

	// The welcome route must not swallow other paths.
	if rec := get(h, "/anything", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: status %d, want 404", rec.Code)
	}
}

func TestSimple_Good(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1", basicAuth("example.org", "s3cret"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "good 10.0.0.1" {
		t.Errorf("body = %q, want %q", got, "good 10.0.0.1")
	}

	recs := m.Records("example.org", "www.example.org")
	if len(recs) != 1 || recs[0].Type != "A" || recs[0].Value != "10.0.0.1" {
		t.Errorf("stored records = %+v", recs)
	}
}

func TestSimple_ReplacesExisting(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	if rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1", basicAuth("example.org", "s3cret")); rec.Code != http.StatusOK {
		t.Fatalf("seed: status %d", rec.Code)
	}
	if rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.2", basicAuth("example.org", "s3cret")); rec.Code != http.StatusOK {
		t.Fatalf("update: status %d", rec.Code)
	}

	recs := m.Records("example.org", "www.example.org")
	if len(recs) != 1 || recs[0].Value != "10.0.0.2" {
		t.Errorf("records after replace = %+v, want just 10.0.0.2", recs)
	}
}

func TestSimple_MixedFamilies(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	target := "/dnsup/v1/simple?hostname=www.example.org&myip=" + url.QueryEscape("10.0.0.1,2001:db8::1")
	rec := get(h, target, basicAuth("example.org", "s3cret"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", rec.Code, rec.Body.String())
	}

	var haveA, haveAAAA bool
	for _, r := range m.Records("example.org", "www.example.org") {
		switch r.Type {
		case "A":
			haveA = true
		case "AAAA":
			haveAAAA = true
		}
	}
	if !haveA || !haveAAAA {
		t.Errorf("want both A and AAAA, got %+v", m.Records("example.org", "www.example.org"))
	}
}

func TestSimple_Offline(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	if rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1", basicAuth("example.org", "s3cret")); rec.Code != http.StatusOK {
		t.Fatalf("seed: status %d", rec.Code)
	}
	rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&offline=1", basicAuth("example.org", "s3cret"))
	if rec.Code != http.StatusOK {
		t.Fatalf("offline: status %d, body %q", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "good" {
		t.Errorf("body = %q, want %q", got, "good")
	}
	if recs := m.Records("example.org", "www.example.org"); len(recs) != 0 {
		t.Errorf("records after offline = %+v, want none", recs)
	}
}

// A request that names hostnames but carries no addresses is rejected;
// only offline=1 is allowed to remove records.
func TestSimple_MissingAddressesDoesNotDelete(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	if rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1", basicAuth("example.org", "s3cret")); rec.Code != http.StatusOK {
		t.Fatalf("seed: status %d", rec.Code)
	}

	rec := get(h, "/dnsup/v1/simple?hostname=www.example.org", basicAuth("example.org", "s3cret"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "911" {
		t.Errorf("body = %q, want %q", got, "911")
	}

	recs := m.Records("example.org", "www.example.org")
	if len(recs) != 1 || recs[0].Value != "10.0.0.1" {
		t.Errorf("records after address-less request = %+v, want the seeded A intact", recs)
	}
}

func TestSimple_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Config{Simple: true})
	h := s.Handler()

	tests := []struct {
		name       string
		target     string
		auth       func(*http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no credentials",
			target:     "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "badauth",
		},
		{
			name:       "wrong secret",
			target:     "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1",
			auth:       basicAuth("example.org", "wrong"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "badauth",
		},
		{
			name:       "unknown zone",
			target:     "/dnsup/v1/simple?hostname=www.nosuch.org&myip=10.0.0.1",
			auth:       basicAuth("nosuch.org", "s3cret"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "badauth",
		},
		{
			name:       "missing hostname",
			target:     "/dnsup/v1/simple?myip=10.0.0.1",
			auth:       basicAuth("example.org", "s3cret"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "911",
		},
		{
			name:       "missing addresses",
			target:     "/dnsup/v1/simple?hostname=www.example.org",
			auth:       basicAuth("example.org", "s3cret"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "911",
		},
		{
			name:       "garbage ttl",
			target:     "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1&ttl=soon",
			auth:       basicAuth("example.org", "s3cret"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "911",
		},
		{
			name:       "bad address",
			target:     "/dnsup/v1/simple?hostname=www.example.org&myip=not-an-ip",
			auth:       basicAuth("example.org", "s3cret"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "911",
		},
		{
			name:       "hostname outside zone",
			target:     "/dnsup/v1/simple?hostname=www.other.org&myip=10.0.0.1",
			auth:       basicAuth("example.org", "s3cret"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "911",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := get(h, tt.target, tt.auth)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}

	rec := get(h, "/dnsup/v1/simple?hostname=www.example.org&myip=10.0.0.1", nil)
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "Basic") {
		t.Errorf("WWW-Authenticate = %q, want Basic challenge", got)
	}
}

func postUpdate(h http.Handler, body string, mod func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/dnsup/v1/update", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mod != nil {
		mod(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUpdate_Applied(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Updates: true})
	h := s.Handler()

	body := `{
		"zone": "example.org",
		"key": "s3cret",
		"updates": [
			{"op": "add", "dns_name": "mail.example.org", "type": "A", "ttl": 300, "data": "10.0.0.5"},
			{"op": "add", "dns_name": "example.org", "type": "MX", "ttl": 300, "priority": 10, "data": "mail.example.org"}
		]
	}`
	rec := postUpdate(h, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %q", rec.Code, rec.Body.String())
	}

	var out updateResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Status != "ok" || len(out.Results) != 2 {
		t.Errorf("response = %+v", out)
	}

	if recs := m.Records("example.org", "mail.example.org"); len(recs) != 1 {
		t.Errorf("stored records = %+v", recs)
	}
	mx := m.Records("example.org", "example.org")
	if len(mx) != 1 || mx[0].Priority != 10 {
		t.Errorf("MX records = %+v", mx)
	}
}

func TestUpdate_KeyFallbacks(t *testing.T) {
	t.Parallel()

	body := `{"zone": "example.org", "updates": [{"op": "add", "dns_name": "www.example.org", "type": "A", "data": "10.0.0.1"}]}`

	t.Run("bearer header", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServer(t, Config{Updates: true})
		rec := postUpdate(s.Handler(), body, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer s3cret")
		})
		if rec.Code != http.StatusOK {
			t.Errorf("status %d, body %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("query parameter with plus folding", func(t *testing.T) {
		t.Parallel()
		s, m := newTestServer(t, Config{Updates: true})
		// The secret contains '+'; a naive client sends it raw and the query
		// parser decodes it as a space.
		if err := m.CreateZone("example.org", "a+b+c"); err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, "/dnsup/v1/update?key=a+b+c", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status %d, body %q", rec.Code, rec.Body.String())
		}
	})
}

func TestUpdate_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Config{Updates: true})
	h := s.Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid JSON",
			body:       `{"zone": `,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON",
		},
		{
			name:       "missing zone",
			body:       `{"updates": []}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "missing zone",
		},
		{
			name:       "wrong key",
			body:       `{"zone": "example.org", "key": "nope", "updates": [{"op": "add", "dns_name": "www.example.org", "type": "A", "data": "10.0.0.1"}]}`,
			wantStatus: http.StatusForbidden,
			wantError:  "invalid DNS update key for example.org",
		},
		{
			name:       "unknown zone",
			body:       `{"zone": "nosuch.org", "key": "s3cret", "updates": [{"op": "add", "dns_name": "www.nosuch.org", "type": "A", "data": "10.0.0.1"}]}`,
			wantStatus: http.StatusForbidden,
			wantError:  "invalid DNS update key for nosuch.org",
		},
		{
			name:       "missing field",
			body:       `{"zone": "example.org", "key": "s3cret", "updates": [{"op": "add", "dns_name": "example.org", "type": "MX", "data": "mail.example.org"}]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "priority",
		},
		{
			name:       "unknown body field",
			body:       `{"zone": "example.org", "key": "s3cret", "zonename": "oops", "updates": []}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON",
		},
		{
			name:       "empty batch",
			body:       `{"zone": "example.org", "key": "s3cret", "updates": []}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := postUpdate(h, tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var out errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if tt.wantError != "" && !strings.Contains(out.Error, tt.wantError) {
				t.Errorf("error = %q, want it to mention %q", out.Error, tt.wantError)
			}
		})
	}
}

func TestUpdate_Conflict(t *testing.T) {
	t.Parallel()

	s, m := newTestServer(t, Config{Updates: true})
	h := s.Handler()

	err := m.Apply(context.Background(), "example.org", []record.Op{{
		Action: record.ActionAdd,
		Record: record.Record{Name: "www.example.org", Type: "A", TTL: 300, Value: "10.0.0.1"},
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"zone": "example.org", "key": "s3cret", "updates": [{"op": "add", "dns_name": "www.example.org", "type": "A", "data": "10.0.0.1"}]}`
	rec := postUpdate(h, body, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		res    engine.Result
		denied int
		want   int
	}{
		{"applied", engine.Result{Kind: engine.Applied}, http.StatusForbidden, http.StatusOK},
		{"denied simple", engine.Result{Kind: engine.Denied}, http.StatusUnauthorized, http.StatusUnauthorized},
		{"denied json", engine.Result{Kind: engine.Denied}, http.StatusForbidden, http.StatusForbidden},
		{"invalid", engine.Result{Kind: engine.Invalid}, http.StatusForbidden, http.StatusBadRequest},
		{"conflict", engine.Result{Kind: engine.Rejected, Reject: backend.ReasonConflict}, http.StatusForbidden, http.StatusConflict},
		{"timeout", engine.Result{Kind: engine.Rejected, Reject: backend.ReasonTimeout}, http.StatusForbidden, http.StatusGatewayTimeout},
		{"unavailable", engine.Result{Kind: engine.Rejected, Reject: backend.ReasonUnavailable}, http.StatusForbidden, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := statusFor(tt.res, tt.denied); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}
