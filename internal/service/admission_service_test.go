package service

import (
	"testing"
	"time"

	"github.com/snipvault/snipvault/internal/adapter/outbound/memory"
	"github.com/snipvault/snipvault/internal/domain/admission"
)

// fakeClock returns a settable clock for deterministic window tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService() (*AdmissionService, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewAdmissionService(
		memory.NewCounterStore(),
		memory.NewViolationStore(),
		WithClock(clock.Now),
	)
	return svc, clock
}

func TestCheck_FixedWindowScenario(t *testing.T) {
	t.Parallel()

	svc, clock := newTestService()
	policy := admission.PolicyConfig{
		Name:      "general",
		Window:    time.Minute,
		BaseLimit: 5,
		Strategy:  admission.StrategyIP,
	}
	caller := admission.Caller{IP: "1.2.3.4"}

	// Requests 1-5 within the window: all allowed with counts 1..5.
	for i := 1; i <= 5; i++ {
		d := svc.Check(policy, caller)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if d.Count != i {
			t.Errorf("request %d: count = %d, want %d", i, d.Count, i)
		}
	}

	// Request 6 at t=30s: denied with retryAfter ~= 30s.
	clock.Advance(30 * time.Second)
	d := svc.Check(policy, caller)
	if d.Allowed {
		t.Fatal("request 6 allowed, want denied")
	}
	if d.RetryAfterSeconds() != 30 {
		t.Errorf("retryAfter = %ds, want 30", d.RetryAfterSeconds())
	}
	if d.Remaining() != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining())
	}

	// Request 7 at t=61s: new window, allowed with count 1.
	clock.Advance(31 * time.Second)
	d = svc.Check(policy, caller)
	if !d.Allowed {
		t.Fatal("request 7 denied, want allowed in fresh window")
	}
	if d.Count != 1 {
		t.Errorf("fresh window count = %d, want 1", d.Count)
	}
}

func TestCheck_GuestAuthSplit(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	policy := admission.PolicyConfig{
		Name:          "execute",
		Window:        time.Minute,
		BaseLimit:     10,
		Strategy:      admission.StrategyGuestAuthIP,
		GuestFraction: 0.5,
	}

	// Guest on this IP is denied on the 6th request.
	guest := admission.Caller{IP: "9.9.9.9"}
	for i := 1; i <= 5; i++ {
		if d := svc.Check(policy, guest); !d.Allowed {
			t.Fatalf("guest request %d denied, want allowed", i)
		}
	}
	d := svc.Check(policy, guest)
	if d.Allowed {
		t.Fatal("guest request 6 allowed, want denied")
	}
	if !d.Guest {
		t.Error("denial not marked as guest")
	}
	if d.Limit != 5 {
		t.Errorf("guest limit = %d, want 5", d.Limit)
	}

	// An authenticated caller on the same IP gets the full limit: denied only
	// on the 11th request.
	authed := admission.Caller{IP: "9.9.9.9", UserID: "user-1"}
	for i := 1; i <= 10; i++ {
		if d := svc.Check(policy, authed); !d.Allowed {
			t.Fatalf("auth request %d denied, want allowed", i)
		}
	}
	d = svc.Check(policy, authed)
	if d.Allowed {
		t.Fatal("auth request 11 allowed, want denied")
	}
	if d.Guest {
		t.Error("authenticated denial marked as guest")
	}
}

func TestCheck_ProgressivePenalty(t *testing.T) {
	t.Parallel()

	svc, clock := newTestService()
	policy := admission.PolicyConfig{
		Name:               "adaptive",
		Window:             time.Minute,
		BaseLimit:          10,
		Strategy:           admission.StrategyIP,
		ProgressivePenalty: true,
	}
	caller := admission.Caller{IP: "6.6.6.6"}

	// Window 1: exhaust the base limit; the denial records violation #1 and
	// carries the pre-denial violation count (0).
	for i := 1; i <= 10; i++ {
		if d := svc.Check(policy, caller); !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
	}
	d := svc.Check(policy, caller)
	if d.Allowed {
		t.Fatal("over-limit request allowed")
	}
	if d.Violations != 0 {
		t.Errorf("first denial violations = %d, want 0 (pre-denial count)", d.Violations)
	}

	// Window 2: one violation on record, divisor still 1, full limit.
	clock.Advance(time.Minute)
	for i := 1; i <= 10; i++ {
		if d := svc.Check(policy, caller); !d.Allowed {
			t.Fatalf("window 2 request %d denied, want allowed (limit %d)", i, d.Limit)
		}
	}
	d = svc.Check(policy, caller) // violation #2
	if d.Allowed || d.Violations != 1 {
		t.Fatalf("window 2 denial: allowed=%v violations=%d, want denied/1", d.Allowed, d.Violations)
	}

	// Window 3: two violations, divisor 2, effective limit 5.
	clock.Advance(time.Minute)
	d = svc.Check(policy, caller)
	if !d.Allowed {
		t.Fatal("first request of window 3 denied, want allowed")
	}
	if d.Limit != 5 {
		t.Errorf("window 3 effective limit = %d, want 5", d.Limit)
	}

	// Even with a heavy violation history, the first request of a fresh
	// window is never denied (floor of 1).
	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		for svc.Check(policy, caller).Allowed {
		}
	}
	clock.Advance(time.Minute)
	d = svc.Check(policy, caller)
	if !d.Allowed {
		t.Error("first request in a window denied despite floor of 1")
	}
	if d.Limit != 1 {
		t.Errorf("heavily penalized limit = %d, want 1", d.Limit)
	}
}

func TestCheck_AuthAttemptSuccessExemption(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	policy := admission.PolicyConfig{
		Name:              "auth_attempt",
		Window:            15 * time.Minute,
		BaseLimit:         5,
		Strategy:          admission.StrategyIPEmail,
		CountFailuresOnly: true,
	}
	caller := admission.Caller{IP: "1.2.3.4", Email: "alice@example.com"}

	fail := func() bool {
		d := svc.Check(policy, caller)
		if d.Allowed {
			svc.RecordFailure(policy, caller)
		}
		return d.Allowed
	}
	succeed := func() bool {
		// Successful logins check admission but never record a failure.
		return svc.Check(policy, caller).Allowed
	}

	// 4 failures, 1 success, 2 more failures: only the 6th counted failure is
	// denied - the success consumed no quota.
	for i := 1; i <= 4; i++ {
		if !fail() {
			t.Fatalf("failed attempt %d denied, want allowed", i)
		}
	}
	if !succeed() {
		t.Fatal("successful login denied, want allowed")
	}
	if !fail() {
		t.Fatal("failed attempt 5 denied, want allowed (success must not count)")
	}
	if fail() {
		t.Fatal("failed attempt 6 allowed, want denied")
	}
}

func TestCheck_AuthAttemptKeyConjunction(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	policy := admission.PolicyConfig{
		Name:              "auth_attempt",
		Window:            15 * time.Minute,
		BaseLimit:         5,
		Strategy:          admission.StrategyIPEmail,
		CountFailuresOnly: true,
	}

	// Exhaust the quota for (ip, alice).
	blocked := admission.Caller{IP: "1.2.3.4", Email: "alice@example.com"}
	for i := 0; i < 5; i++ {
		svc.RecordFailure(policy, blocked)
	}
	if svc.Check(policy, blocked).Allowed {
		t.Fatal("exhausted (ip,email) pair still allowed")
	}

	// A different email from the same IP is tracked separately.
	if !svc.Check(policy, admission.Caller{IP: "1.2.3.4", Email: "bob@example.com"}).Allowed {
		t.Error("different email from same IP shares quota, want separate tracking")
	}

	// The same email from a different IP is tracked separately.
	if !svc.Check(policy, admission.Caller{IP: "5.6.7.8", Email: "alice@example.com"}).Allowed {
		t.Error("same email from different IP shares quota, want separate tracking")
	}
}

func TestCheck_FirstRequestNeverDenied(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	for _, limit := range []int{1, 2, 100} {
		policy := admission.PolicyConfig{
			Name:               "adaptive",
			Window:             time.Minute,
			BaseLimit:          limit,
			Strategy:           admission.StrategyIP,
			ProgressivePenalty: true,
		}
		caller := admission.Caller{IP: "first-" + string(rune('0'+limit%10))}
		if d := svc.Check(policy, caller); !d.Allowed {
			t.Errorf("very first request denied with baseLimit=%d", limit)
		}
	}
}
