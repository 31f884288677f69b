// Package admission provides the request admission control domain:
// fixed-window counting, progressive penalties, and per-policy identity keys.
package admission

import (
	"time"
)

// IdentityStrategy selects how a policy derives its identity key from a caller.
type IdentityStrategy string

const (
	// StrategyIP keys the quota on the client IP alone.
	StrategyIP IdentityStrategy = "ip"

	// StrategyUserOrIP keys on the authenticated user ID, falling back to IP
	// for guests.
	StrategyUserOrIP IdentityStrategy = "user_or_ip"

	// StrategyGuestAuthIP keys on a guest-/auth- prefixed IP. Authenticated
	// callers are still keyed by IP (not user ID) so the quota cannot be
	// multiplied with disposable accounts.
	StrategyGuestAuthIP IdentityStrategy = "guest_auth_ip"

	// StrategyIPEmail keys on the conjunction of client IP and the claimed
	// email, for login-attempt tracking.
	StrategyIPEmail IdentityStrategy = "ip_email"
)

// PolicyConfig is an immutable admission policy definition.
// Instances are built once at startup and read concurrently.
type PolicyConfig struct {
	// Name is the unique catalog name of this policy.
	Name string

	// Window is the fixed-window length.
	Window time.Duration

	// BaseLimit is the maximum number of counted requests per window before
	// any penalty or guest reduction is applied.
	BaseLimit int

	// Strategy selects the identity key derivation.
	Strategy IdentityStrategy

	// ProgressivePenalty enables quota reduction based on accumulated
	// violation history.
	ProgressivePenalty bool

	// GuestFraction, when in (0,1], reduces the limit for unauthenticated
	// callers to floor(BaseLimit*GuestFraction). Zero disables the split.
	GuestFraction float64

	// CountFailuresOnly marks policies where successful operations are exempt
	// from counting (auth brute-force). Callers must use a peek-then-record
	// sequence instead of a plain increment.
	CountFailuresOnly bool
}

// Caller is the resolved identity of an inbound request.
type Caller struct {
	// IP is the client IP, or "unknown" when no extractor produced one.
	IP string

	// UserID is the authenticated user ID, empty for guests.
	UserID string

	// Email is the claimed credential for login-attempt policies.
	Email string
}

// Authenticated reports whether the caller carries a user identity.
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// Decision is the outcome of evaluating one policy for one request.
type Decision struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Policy is the catalog name of the policy that produced this decision.
	Policy string

	// Key is the full counter-store key the decision was made against.
	Key string

	// Limit is the effective limit for this window (after penalty or guest
	// reduction).
	Limit int

	// Count is the window count observed by this request.
	Count int

	// WindowEnd is when the current window expires.
	WindowEnd time.Time

	// RetryAfter is the remaining window time. Only meaningful on denial.
	RetryAfter time.Duration

	// Violations is the caller's violation count before this decision was
	// recorded. Only populated by progressive-penalty policies.
	Violations int

	// Guest reports whether a guest-reduced limit applied.
	Guest bool
}

// Remaining returns the number of requests left in the window, never negative.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// RetryAfterSeconds returns RetryAfter as whole seconds rounded up, minimum 1.
// This is the value surfaced in Retry-After headers and denial payloads.
func (d Decision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CounterStore is the fixed-window counter backing all policies.
// One entry exists per (identity key, policy); keys produced by Key are
// already policy-namespaced.
type CounterStore interface {
	// Increment bumps the counter for key, lazily starting a fresh window
	// when none exists or the previous one expired. It returns the updated
	// count and the window end. The read-check-increment sequence is atomic
	// per key.
	Increment(key string, window time.Duration, now time.Time) (count int, windowEnd time.Time)

	// Peek returns the current count and window end without incrementing.
	// An absent or expired entry reads as (0, zero time).
	Peek(key string, now time.Time) (count int, windowEnd time.Time)
}

// ViolationStore tracks per-key denial history for progressive penalties.
// Counts are monotonically non-decreasing while an entry exists; entries are
// only removed by time-based eviction.
type ViolationStore interface {
	// Record increments the violation count for key and returns the new count.
	Record(key string, now time.Time) int

	// Count returns the current violation count, or 0 when unknown.
	Count(key string) int
}
