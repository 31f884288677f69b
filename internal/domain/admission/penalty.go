package admission

// penaltyDivisor maps a violation count to the quota divisor.
// First-time offenders keep their full quota; repeat offenders are cut to
// a half, a fifth, then a tenth.
func penaltyDivisor(violations int) int {
	switch {
	case violations <= 1:
		return 1
	case violations <= 3:
		return 2
	case violations <= 5:
		return 5
	default:
		return 10
	}
}

// EffectiveLimit returns the penalty-adjusted limit for a window.
// The floor of 1 guarantees every key can always make at least one request
// per window, so the very first request from a key is never denied.
func EffectiveLimit(baseLimit, violations int) int {
	limit := baseLimit / penaltyDivisor(violations)
	if limit < 1 {
		limit = 1
	}
	return limit
}

// GuestLimit returns the reduced limit for unauthenticated callers.
// fraction must be in (0,1]; values outside that range leave the base limit
// untouched.
func GuestLimit(baseLimit int, fraction float64) int {
	if fraction <= 0 || fraction > 1 {
		return baseLimit
	}
	limit := int(float64(baseLimit) * fraction)
	if limit < 1 {
		limit = 1
	}
	return limit
}
