package service

import (
	"time"

	"github.com/snipvault/snipvault/internal/domain/admission"
)

// AdmissionService makes allow/deny decisions for inbound requests.
// It composes the counter store, violation tracker, and the pure policy math;
// it performs no I/O, so a check completes in effectively constant time and
// can never fail - every evaluation terminates in allow or deny.
type AdmissionService struct {
	counters   admission.CounterStore
	violations admission.ViolationStore
	now        func() time.Time
}

// AdmissionOption configures AdmissionService.
type AdmissionOption func(*AdmissionService)

// WithClock overrides the wall clock. Used by tests to make windows
// deterministic.
func WithClock(now func() time.Time) AdmissionOption {
	return func(s *AdmissionService) {
		s.now = now
	}
}

// NewAdmissionService creates an admission service over the given stores.
func NewAdmissionService(counters admission.CounterStore, violations admission.ViolationStore, opts ...AdmissionOption) *AdmissionService {
	s := &AdmissionService{
		counters:   counters,
		violations: violations,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check evaluates one policy for one caller.
//
// For ordinary policies the counter is incremented and the request is denied
// when the updated count exceeds the effective limit. Progressive-penalty
// policies reduce the limit from the caller's violation history first and
// record a fresh violation on denial; the decision carries the pre-denial
// violation count.
//
// For CountFailuresOnly policies (auth brute-force) the counter is only
// peeked: the request is denied when the accumulated failure count has
// already reached the limit. Callers must report failed operations via
// RecordFailure, so successful operations never consume quota.
func (s *AdmissionService) Check(p admission.PolicyConfig, c admission.Caller) admission.Decision {
	now := s.now()
	key := admission.Key(p, c)

	d := admission.Decision{
		Policy: p.Name,
		Key:    key,
		Limit:  p.BaseLimit,
	}

	if p.GuestFraction > 0 && !c.Authenticated() {
		d.Limit = admission.GuestLimit(p.BaseLimit, p.GuestFraction)
		d.Guest = true
	}
	if p.ProgressivePenalty {
		d.Violations = s.violations.Count(key)
		d.Limit = admission.EffectiveLimit(d.Limit, d.Violations)
	}

	if p.CountFailuresOnly {
		count, windowEnd := s.counters.Peek(key, now)
		d.Count = count
		d.WindowEnd = windowEnd
		if count >= d.Limit {
			d.Allowed = false
			d.RetryAfter = windowEnd.Sub(now)
			return d
		}
		d.Allowed = true
		return d
	}

	count, windowEnd := s.counters.Increment(key, p.Window, now)
	d.Count = count
	d.WindowEnd = windowEnd

	if count > d.Limit {
		if p.ProgressivePenalty {
			s.violations.Record(key, now)
		}
		d.Allowed = false
		d.RetryAfter = windowEnd.Sub(now)
		return d
	}

	d.Allowed = true
	return d
}

// RecordFailure counts one failed operation against a CountFailuresOnly
// policy. Returns the updated failure count for the window.
func (s *AdmissionService) RecordFailure(p admission.PolicyConfig, c admission.Caller) int {
	count, _ := s.counters.Increment(admission.Key(p, c), p.Window, s.now())
	return count
}
