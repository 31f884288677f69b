// Package audit provides the denial audit trail domain types.
package audit

import (
	"context"
	"time"
)

// DenialRecord captures one admission denial for operational review.
// Routine denials carry key and path only; suspicious-volume denials also
// carry the full request headers so a human can review them.
type DenialRecord struct {
	ID         string              `json:"id"`
	Time       time.Time           `json:"time"`
	Policy     string              `json:"policy"`
	Key        string              `json:"key"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Violations int                 `json:"violations,omitempty"`
	Suspicious bool                `json:"suspicious,omitempty"`
	Headers    map[string][]string `json:"headers,omitempty"`
}

// Store persists denial records.
type Store interface {
	// Append stores one or more records.
	Append(ctx context.Context, records ...DenialRecord) error

	// Recent returns up to limit of the most recent records, newest last.
	Recent(ctx context.Context, limit int) ([]DenialRecord, error)
}
