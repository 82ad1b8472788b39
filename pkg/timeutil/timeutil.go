package timeutil

import "time"

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// Now returns the current UTC time.
func Now() time.Time { return time.Now().UTC() }

// Millis converts t to the unix millisecond form stored in documents.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis is the inverse of Millis, in UTC.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock { return func() time.Time { return t } }
