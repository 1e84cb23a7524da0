package models

import "time"

// Now returns the current time normalized for storage and comparison.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to UTC with millisecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
