// Package timeutil centralizes time handling for the gateway.
// All persisted timestamps are UTC with timezone; this package keeps the
// truncation and comparison conventions in one place.
package timeutil

import "time"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// NowTrunc returns the current UTC time truncated to microseconds,
// matching PostgreSQL TIMESTAMPTZ precision so round-tripped values compare
// equal in tests.
func NowTrunc() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// IsExpired reports whether the deadline has passed at the given instant.
func IsExpired(deadline, now time.Time) bool {
	return !deadline.IsZero() && now.After(deadline)
}

// StartOfDay returns midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
