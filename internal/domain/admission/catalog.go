package admission

import (
	"fmt"
	"sort"
	"time"
)

// Catalog policy names. Each name binds a window, base limit, identity
// strategy, and optional guest split or progressive penalty.
const (
	// PolicyGeneral shapes all API traffic per IP.
	PolicyGeneral = "general"

	// PolicyExecute guards code execution submissions with a guest/auth split.
	PolicyExecute = "execute"

	// PolicySnippetCreate guards snippet creation.
	PolicySnippetCreate = "snippet_create"

	// PolicyCommentCreate guards comment creation.
	PolicyCommentCreate = "comment_create"

	// PolicyStarToggle guards star toggling.
	PolicyStarToggle = "star_toggle"

	// PolicyWebhook guards webhook ingestion.
	PolicyWebhook = "webhook"

	// PolicyAuthAttempt guards login attempts; successes are exempt from
	// counting and the window is long with a single-digit limit.
	PolicyAuthAttempt = "auth_attempt"

	// PolicyAdaptive is the progressive-penalty policy for abusive callers.
	PolicyAdaptive = "adaptive"
)

// Catalog holds the named, pre-configured admission policies.
// Immutable after construction; read concurrently by every request.
type Catalog struct {
	policies map[string]PolicyConfig
}

// DefaultCatalog returns the catalog with the platform's stock policies.
func DefaultCatalog() *Catalog {
	defaults := []PolicyConfig{
		{Name: PolicyGeneral, Window: time.Minute, BaseLimit: 100, Strategy: StrategyIP},
		{Name: PolicyExecute, Window: time.Minute, BaseLimit: 10, Strategy: StrategyGuestAuthIP, GuestFraction: 0.5},
		{Name: PolicySnippetCreate, Window: time.Minute, BaseLimit: 5, Strategy: StrategyIP},
		{Name: PolicyCommentCreate, Window: time.Minute, BaseLimit: 20, Strategy: StrategyIP},
		{Name: PolicyStarToggle, Window: time.Minute, BaseLimit: 30, Strategy: StrategyIP},
		{Name: PolicyWebhook, Window: time.Minute, BaseLimit: 100, Strategy: StrategyIP},
		{Name: PolicyAuthAttempt, Window: 15 * time.Minute, BaseLimit: 5, Strategy: StrategyIPEmail, CountFailuresOnly: true},
		{Name: PolicyAdaptive, Window: time.Minute, BaseLimit: 60, Strategy: StrategyUserOrIP, ProgressivePenalty: true},
	}

	c := &Catalog{policies: make(map[string]PolicyConfig, len(defaults))}
	for _, p := range defaults {
		c.policies[p.Name] = p
	}
	return c
}

// Get returns the policy for name.
func (c *Catalog) Get(name string) (PolicyConfig, bool) {
	p, ok := c.policies[name]
	return p, ok
}

// Names returns all policy names in the catalog.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.policies))
	for name := range c.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Override replaces the window and/or base limit of a named policy.
// Zero values leave the corresponding default untouched. Returns an error for
// unknown policy names so configuration typos surface at startup.
func (c *Catalog) Override(name string, window time.Duration, limit int) error {
	p, ok := c.policies[name]
	if !ok {
		return fmt.Errorf("unknown admission policy %q", name)
	}
	if window > 0 {
		p.Window = window
	}
	if limit > 0 {
		p.BaseLimit = limit
	}
	c.policies[name] = p
	return nil
}
