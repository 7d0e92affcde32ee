// Package common provides shared utilities for the advisor engine
package common

import "time"

// Fallback freshness TTLs, used when the config section is absent.
const (
	FreshnessQuote  = 5 * time.Minute
	FreshnessCloses = 6 * time.Hour
	FreshnessNews   = 30 * time.Minute
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}

// IsFreshAt is IsFresh against an injected clock, for deterministic tests
// and scheduler cycles that pin a single evaluation instant.
func IsFreshAt(updated time.Time, ttl time.Duration, now time.Time) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
