package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snipvault/snipvault/internal/adapter/outbound/executor"
	"github.com/snipvault/snipvault/internal/adapter/outbound/memory"
	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/auth"
	"github.com/snipvault/snipvault/internal/service"
)

// newTestServer builds the full route tree over real components and serves
// it from an httptest server.
func newTestServer(t *testing.T, modify func(*admission.Catalog)) *httptest.Server {
	t.Helper()

	catalog := admission.DefaultCatalog()
	if modify != nil {
		modify(catalog)
	}

	counters := memory.NewCounterStore()
	violations := memory.NewViolationStore()
	admSvc := service.NewAdmissionService(counters, violations)
	auditSvc := service.NewAuditService(memory.NewAuditStore(), testLogger())
	t.Cleanup(auditSvc.Stop)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	adm := NewAdmissionMiddleware(admSvc, catalog, nil, auditSvc, metrics, 5, true)

	sessions := memory.NewSessionStore()
	verifier := &fakeVerifier{
		email:    "one@example.com",
		password: "correct horse",
		user:     auth.User{ID: "user-1", Email: "one@example.com"},
	}
	handlers := NewHandlers(adm, verifier, sessions, time.Hour, newFakeSnippetStore(), executor.NewClient(""), auditSvc, metrics)

	srv := NewServer(adm, handlers, sessions,
		WithLogger(testLogger()),
		WithMetrics(reg, metrics),
		WithHealthChecker(NewHealthChecker(counters, violations, sessions, auditSvc, "test")),
	)

	ts := httptest.NewServer(srv.router(reg))
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_HealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", health.Status)
	}
	if health.Checks["rate_limit_counters"] == "" {
		t.Error("health checks missing rate_limit_counters")
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = mresp.Body.Close() }()
	if mresp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", mresp.StatusCode)
	}
	body, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(body), "snipvault_requests_total") {
		t.Error("/metrics output missing snipvault_requests_total")
	}
}

func TestServer_GeneralTierStacksWithEndpointTier(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *admission.Catalog) {
		if err := c.Override(admission.PolicyGeneral, time.Minute, 3); err != nil {
			t.Fatal(err)
		}
	})

	// The webhook policy allows 100/min, but the general tier caps all API
	// traffic at 3. The 4th request is denied by the general tier.
	var last *http.Response
	for i := 0; i < 4; i++ {
		resp, err := http.Post(ts.URL+"/api/webhooks/github", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		if last != nil {
			_ = last.Body.Close()
		}
		last = resp
	}
	defer func() { _ = last.Body.Close() }()

	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("4th request: status = %d, want 429 from general tier", last.StatusCode)
	}

	var body denialResponse
	if err := json.NewDecoder(last.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Error.Code)
	}
}

func TestServer_WebhookAccepted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/webhooks/ci", "application/json", strings.NewReader(`{"event":"push"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
}

func TestServer_RateLimitHeadersOnAllowedRequests(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/webhooks/ci", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("allowed response missing X-RateLimit-Limit")
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Error("allowed response missing X-RateLimit-Remaining")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID")
	}
}
