package cel

import (
	"strings"
	"testing"
)

func TestBypassEvaluator_Match(t *testing.T) {
	t.Parallel()

	e, err := NewBypassEvaluator([]RuleSpec{
		{Name: "internal-network", Condition: `ip.startsWith("10.")`},
		{Name: "trusted-webhooks", Condition: `path.startsWith("/api/webhooks/") && method == "POST"`},
		{Name: "auth-reads", Condition: `authenticated && method == "GET"`},
	})
	if err != nil {
		t.Fatalf("NewBypassEvaluator() error: %v", err)
	}

	tests := []struct {
		name     string
		attrs    RequestAttributes
		wantRule string
		want     bool
	}{
		{
			name:     "internal ip matches",
			attrs:    RequestAttributes{IP: "10.1.2.3", Path: "/api/execute", Method: "POST"},
			wantRule: "internal-network",
			want:     true,
		},
		{
			name:     "webhook path matches",
			attrs:    RequestAttributes{IP: "203.0.113.9", Path: "/api/webhooks/github", Method: "POST"},
			wantRule: "trusted-webhooks",
			want:     true,
		},
		{
			name:  "webhook path wrong method",
			attrs: RequestAttributes{IP: "203.0.113.9", Path: "/api/webhooks/github", Method: "GET"},
			want:  false,
		},
		{
			name:     "authenticated read",
			attrs:    RequestAttributes{IP: "203.0.113.9", Path: "/api/snippets/abc", Method: "GET", Authenticated: true, UserType: "auth"},
			wantRule: "auth-reads",
			want:     true,
		},
		{
			name:  "no rule matches",
			attrs: RequestAttributes{IP: "203.0.113.9", Path: "/api/execute", Method: "POST", UserType: "guest"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rule, ok := e.Match(tt.attrs)
			if ok != tt.want || rule != tt.wantRule {
				t.Errorf("Match() = (%q, %v), want (%q, %v)", rule, ok, tt.wantRule, tt.want)
			}
		})
	}
}

func TestBypassEvaluator_NilAndEmpty(t *testing.T) {
	t.Parallel()

	var nilEval *BypassEvaluator
	if _, ok := nilEval.Match(RequestAttributes{IP: "1.2.3.4"}); ok {
		t.Error("nil evaluator must never match")
	}

	empty, err := NewBypassEvaluator(nil)
	if err != nil {
		t.Fatalf("NewBypassEvaluator(nil) error: %v", err)
	}
	if _, ok := empty.Match(RequestAttributes{IP: "1.2.3.4"}); ok {
		t.Error("empty evaluator must never match")
	}
}

func TestBypassEvaluator_InvalidExpressions(t *testing.T) {
	t.Parallel()

	invalid := []RuleSpec{
		{Name: "empty", Condition: ""},
		{Name: "syntax", Condition: "ip =="},
		{Name: "unknown-var", Condition: "nonexistent == true"},
		{Name: "too-long", Condition: `ip == "` + strings.Repeat("x", 2000) + `"`},
		{Name: "non-bool", Condition: `ip`},
	}

	for _, spec := range invalid[:4] {
		if _, err := NewBypassEvaluator([]RuleSpec{spec}); err == nil {
			t.Errorf("NewBypassEvaluator(%s) succeeded, want error", spec.Name)
		}
	}

	// A type-correct but non-boolean expression compiles in CEL only if the
	// checker allows it; either it fails construction or never matches.
	e, err := NewBypassEvaluator([]RuleSpec{invalid[4]})
	if err == nil {
		if _, ok := e.Match(RequestAttributes{IP: "1.2.3.4"}); ok {
			t.Error("non-boolean rule matched")
		}
	}
}
