package admission

import (
	"strings"
	"testing"
)

func TestSubject_IP(t *testing.T) {
	t.Parallel()

	c := Caller{IP: "1.2.3.4", UserID: "user-1"}
	if got := Subject(StrategyIP, c); got != "1.2.3.4" {
		t.Errorf("Subject(ip) = %q, want %q", got, "1.2.3.4")
	}
}

func TestSubject_UserOrIP(t *testing.T) {
	t.Parallel()

	auth := Caller{IP: "1.2.3.4", UserID: "user-1"}
	if got := Subject(StrategyUserOrIP, auth); got != "user-1" {
		t.Errorf("Subject(user_or_ip, auth) = %q, want user-1", got)
	}

	guest := Caller{IP: "1.2.3.4"}
	if got := Subject(StrategyUserOrIP, guest); got != "1.2.3.4" {
		t.Errorf("Subject(user_or_ip, guest) = %q, want 1.2.3.4", got)
	}
}

func TestSubject_GuestAuthIP(t *testing.T) {
	t.Parallel()

	// Authenticated callers are keyed by IP with an auth- prefix, never by
	// user ID, so quotas cannot be multiplied across disposable accounts.
	auth := Caller{IP: "1.2.3.4", UserID: "user-1"}
	if got := Subject(StrategyGuestAuthIP, auth); got != "auth-1.2.3.4" {
		t.Errorf("Subject(guest_auth_ip, auth) = %q, want auth-1.2.3.4", got)
	}

	guest := Caller{IP: "1.2.3.4"}
	if got := Subject(StrategyGuestAuthIP, guest); got != "guest-1.2.3.4" {
		t.Errorf("Subject(guest_auth_ip, guest) = %q, want guest-1.2.3.4", got)
	}
}

func TestSubject_IPEmail(t *testing.T) {
	t.Parallel()

	a := Subject(StrategyIPEmail, Caller{IP: "1.2.3.4", Email: "Alice@Example.com"})
	b := Subject(StrategyIPEmail, Caller{IP: "1.2.3.4", Email: " alice@example.com "})
	if a != b {
		t.Errorf("normalized emails must yield identical subjects: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "1.2.3.4:") {
		t.Errorf("Subject(ip_email) = %q, want prefix 1.2.3.4:", a)
	}

	// Same email from a different IP is a distinct subject (conjunction key).
	c := Subject(StrategyIPEmail, Caller{IP: "5.6.7.8", Email: "alice@example.com"})
	if a == c {
		t.Error("different IPs with the same email must not share a subject")
	}

	// Different emails from the same IP are distinct subjects.
	d := Subject(StrategyIPEmail, Caller{IP: "1.2.3.4", Email: "bob@example.com"})
	if a == d {
		t.Error("different emails from the same IP must not share a subject")
	}
}

func TestKey_NamespacedPerPolicy(t *testing.T) {
	t.Parallel()

	c := Caller{IP: "1.2.3.4"}
	k1 := Key(PolicyConfig{Name: "general", Strategy: StrategyIP}, c)
	k2 := Key(PolicyConfig{Name: "snippet_create", Strategy: StrategyIP}, c)

	if k1 != "admission:general:1.2.3.4" {
		t.Errorf("Key = %q, want admission:general:1.2.3.4", k1)
	}
	if k1 == k2 {
		t.Error("the same caller must get distinct keys under distinct policies")
	}
}

func TestEmailHash_Deterministic(t *testing.T) {
	t.Parallel()

	h1 := EmailHash("alice@example.com")
	h2 := EmailHash("ALICE@example.com")
	if h1 != h2 {
		t.Errorf("EmailHash is not case-normalized: %q vs %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("EmailHash length = %d, want 16 hex chars", len(h1))
	}
}
