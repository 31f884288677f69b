package admission

import (
	"testing"
	"time"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()

	tests := []struct {
		name     string
		window   time.Duration
		limit    int
		strategy IdentityStrategy
	}{
		{PolicyGeneral, time.Minute, 100, StrategyIP},
		{PolicyExecute, time.Minute, 10, StrategyGuestAuthIP},
		{PolicySnippetCreate, time.Minute, 5, StrategyIP},
		{PolicyCommentCreate, time.Minute, 20, StrategyIP},
		{PolicyStarToggle, time.Minute, 30, StrategyIP},
		{PolicyWebhook, time.Minute, 100, StrategyIP},
		{PolicyAuthAttempt, 15 * time.Minute, 5, StrategyIPEmail},
		{PolicyAdaptive, time.Minute, 60, StrategyUserOrIP},
	}

	for _, tt := range tests {
		p, ok := c.Get(tt.name)
		if !ok {
			t.Errorf("policy %q missing from default catalog", tt.name)
			continue
		}
		if p.Window != tt.window {
			t.Errorf("%s: window = %v, want %v", tt.name, p.Window, tt.window)
		}
		if p.BaseLimit != tt.limit {
			t.Errorf("%s: base limit = %d, want %d", tt.name, p.BaseLimit, tt.limit)
		}
		if p.Strategy != tt.strategy {
			t.Errorf("%s: strategy = %q, want %q", tt.name, p.Strategy, tt.strategy)
		}
	}

	exec, _ := c.Get(PolicyExecute)
	if exec.GuestFraction != 0.5 {
		t.Errorf("execute guest fraction = %v, want 0.5", exec.GuestFraction)
	}
	auth, _ := c.Get(PolicyAuthAttempt)
	if !auth.CountFailuresOnly {
		t.Error("auth_attempt must count failures only")
	}
	adaptive, _ := c.Get(PolicyAdaptive)
	if !adaptive.ProgressivePenalty {
		t.Error("adaptive must use progressive penalties")
	}
}

func TestCatalogOverride(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()
	if err := c.Override(PolicySnippetCreate, 30*time.Second, 3); err != nil {
		t.Fatalf("Override() error: %v", err)
	}

	p, _ := c.Get(PolicySnippetCreate)
	if p.Window != 30*time.Second || p.BaseLimit != 3 {
		t.Errorf("override not applied: window=%v limit=%d", p.Window, p.BaseLimit)
	}

	// Zero values keep defaults.
	if err := c.Override(PolicyGeneral, 0, 0); err != nil {
		t.Fatalf("Override() error: %v", err)
	}
	g, _ := c.Get(PolicyGeneral)
	if g.Window != time.Minute || g.BaseLimit != 100 {
		t.Errorf("zero override mutated defaults: window=%v limit=%d", g.Window, g.BaseLimit)
	}

	if err := c.Override("nope", time.Second, 1); err == nil {
		t.Error("Override() with unknown policy should fail")
	}
}
