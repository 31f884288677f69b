package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	celadapter "github.com/snipvault/snipvault/internal/adapter/outbound/cel"
	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/audit"
	"github.com/snipvault/snipvault/internal/service"
)

// denialErrorCode is the machine-readable code carried in every 429 body.
const denialErrorCode = "RATE_LIMIT_EXCEEDED"

// denialError is the "error" object of a denial response.
type denialError struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
	Violations *int   `json:"violations,omitempty"`
	IsGuest    *bool  `json:"isGuest,omitempty"`
}

// denialResponse is the JSON body of a 429 response.
type denialResponse struct {
	Error denialError `json:"error"`
}

// AdmissionMiddleware gates routes behind the admission service. Each route
// group declares its policy with Require; the general policy and an endpoint
// policy stack, so one request can consume quota from both tiers.
type AdmissionMiddleware struct {
	svc                 *service.AdmissionService
	catalog             *admission.Catalog
	bypass              *celadapter.BypassEvaluator
	auditSvc            *service.AuditService
	metrics             *Metrics
	suspiciousThreshold int
	enabled             bool
}

// NewAdmissionMiddleware builds the middleware. bypass and auditSvc may be
// nil. metrics may be nil at construction; the server injects the shared set
// before serving.
func NewAdmissionMiddleware(
	svc *service.AdmissionService,
	catalog *admission.Catalog,
	bypass *celadapter.BypassEvaluator,
	auditSvc *service.AuditService,
	metrics *Metrics,
	suspiciousThreshold int,
	enabled bool,
) *AdmissionMiddleware {
	if suspiciousThreshold <= 0 {
		suspiciousThreshold = 5
	}
	return &AdmissionMiddleware{
		svc:                 svc,
		catalog:             catalog,
		bypass:              bypass,
		auditSvc:            auditSvc,
		metrics:             metrics,
		suspiciousThreshold: suspiciousThreshold,
		enabled:             enabled,
	}
}

// Require returns a middleware enforcing the named policy.
// Unknown policy names panic at route construction time: a misnamed policy is
// a programming error, not a runtime condition.
func (m *AdmissionMiddleware) Require(policyName string) func(http.Handler) http.Handler {
	policy, ok := m.catalog.Get(policyName)
	if !ok {
		panic("admission: unknown policy " + policyName)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.enabled {
				next.ServeHTTP(w, r)
				return
			}

			caller := CallerFromContext(r.Context())

			if rule, matched := m.matchBypass(r, caller); matched {
				m.metrics.AdmissionBypasses.WithLabelValues(rule).Inc()
				LoggerFromContext(r.Context()).Debug("admission bypassed",
					"rule", rule,
					"policy", policy.Name,
					"ip", caller.IP,
				)
				next.ServeHTTP(w, r)
				return
			}

			decision := m.svc.Check(policy, caller)
			setRateLimitHeaders(w, decision)

			if decision.Allowed {
				m.metrics.AdmissionDecisions.WithLabelValues(policy.Name, "allow").Inc()
				next.ServeHTTP(w, r)
				return
			}

			m.metrics.AdmissionDecisions.WithLabelValues(policy.Name, "deny").Inc()
			if policy.ProgressivePenalty {
				m.metrics.ViolationsTotal.Inc()
			}
			m.deny(w, r, decision)
		})
	}
}

// CheckCaller evaluates policyName for an explicitly resolved caller and
// writes the denial response itself when the check fails. Used by handlers
// whose identity key needs request-body data (login attempts carry the
// claimed email), which a route middleware cannot see.
// Returns true when the request may proceed.
func (m *AdmissionMiddleware) CheckCaller(w http.ResponseWriter, r *http.Request, policyName string, caller admission.Caller) bool {
	if !m.enabled {
		return true
	}
	policy, ok := m.catalog.Get(policyName)
	if !ok {
		panic("admission: unknown policy " + policyName)
	}

	decision := m.svc.Check(policy, caller)
	setRateLimitHeaders(w, decision)

	if decision.Allowed {
		m.metrics.AdmissionDecisions.WithLabelValues(policy.Name, "allow").Inc()
		return true
	}

	m.metrics.AdmissionDecisions.WithLabelValues(policy.Name, "deny").Inc()
	m.deny(w, r, decision)
	return false
}

// RecordFailure counts one failed operation against a CountFailuresOnly
// policy (failed logins). No-op when admission is disabled.
func (m *AdmissionMiddleware) RecordFailure(policyName string, caller admission.Caller) {
	if !m.enabled {
		return
	}
	policy, ok := m.catalog.Get(policyName)
	if !ok {
		panic("admission: unknown policy " + policyName)
	}
	m.svc.RecordFailure(policy, caller)
}

// matchBypass evaluates bypass rules against the request.
func (m *AdmissionMiddleware) matchBypass(r *http.Request, caller admission.Caller) (string, bool) {
	if m.bypass == nil {
		return "", false
	}
	userType := "guest"
	if caller.Authenticated() {
		userType = "auth"
	}
	return m.bypass.Match(celadapter.RequestAttributes{
		IP:            caller.IP,
		Path:          r.URL.Path,
		Method:        r.Method,
		Authenticated: caller.Authenticated(),
		UserType:      userType,
	})
}

// deny writes the 429 response, logs the denial, and records it in the
// audit trail. Denials past the suspicious threshold are logged at error
// level with full request headers attached to the audit record.
func (m *AdmissionMiddleware) deny(w http.ResponseWriter, r *http.Request, d admission.Decision) {
	logger := LoggerFromContext(r.Context())
	suspicious := d.Violations >= m.suspiciousThreshold

	if suspicious {
		logger.Error("admission denied: suspicious request volume",
			"policy", d.Policy,
			"key", d.Key,
			"violations", d.Violations,
			"path", r.URL.Path,
			"headers", r.Header,
		)
	} else {
		logger.Warn("admission denied",
			"policy", d.Policy,
			"key", d.Key,
			"count", d.Count,
			"limit", d.Limit,
			"path", r.URL.Path,
		)
	}

	if m.auditSvc != nil {
		record := audit.DenialRecord{
			ID:         uuid.New().String(),
			Time:       time.Now(),
			Policy:     d.Policy,
			Key:        d.Key,
			Method:     r.Method,
			Path:       r.URL.Path,
			Violations: d.Violations,
			Suspicious: suspicious,
		}
		if suspicious {
			record.Headers = r.Header.Clone()
		}
		m.auditSvc.Record(record)
	}

	WriteDenial(w, d)
}

// setRateLimitHeaders attaches quota headers to every admission-checked
// response, allowed or denied.
func setRateLimitHeaders(w http.ResponseWriter, d admission.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.WindowEnd.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
	}
}

// WriteDenial writes the standard 429 response for a denied decision.
// Exported so handlers performing in-handler admission checks (login) produce
// the identical denial contract.
func WriteDenial(w http.ResponseWriter, d admission.Decision) {
	retryAfter := d.RetryAfterSeconds()

	e := denialError{
		Message:    "Rate limit exceeded. Try again in " + strconv.Itoa(retryAfter) + " seconds.",
		Code:       denialErrorCode,
		RetryAfter: retryAfter,
	}
	if d.Violations > 0 {
		v := d.Violations
		e.Violations = &v
	}
	if d.Guest {
		g := true
		e.IsGuest = &g
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(denialResponse{Error: e})
}
