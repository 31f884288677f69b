package admission

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// UnknownIP is the sentinel subject used when no extractor yields a client IP.
// Unresolvable callers share one quota bucket rather than failing the request.
const UnknownIP = "unknown"

// keyPrefix is the base prefix for all admission counter keys.
const keyPrefix = "admission"

// Subject derives the policy-specific identity subject for a caller.
// Two requests that must share a quota always produce byte-identical subjects;
// the function is deterministic and side-effect free.
func Subject(strategy IdentityStrategy, c Caller) string {
	switch strategy {
	case StrategyUserOrIP:
		if c.UserID != "" {
			return c.UserID
		}
		return c.IP
	case StrategyGuestAuthIP:
		if c.Authenticated() {
			return "auth-" + c.IP
		}
		return "guest-" + c.IP
	case StrategyIPEmail:
		return c.IP + ":" + EmailHash(c.Email)
	default:
		return c.IP
	}
}

// Key returns the full counter-store key for a policy and caller.
// Format: "admission:{policy}:{subject}", giving one counter entry per
// (identity key, policy) pair.
func Key(p PolicyConfig, c Caller) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, p.Name, Subject(p.Strategy, c))
}

// EmailHash returns a stable 64-bit hex digest of a normalized email address.
// Raw emails never enter the counter store; the hash preserves the key
// determinism invariant while keeping credentials out of memory dumps.
func EmailHash(email string) string {
	norm := strings.ToLower(strings.TrimSpace(email))
	return fmt.Sprintf("%016x", xxhash.Sum64String(norm))
}
