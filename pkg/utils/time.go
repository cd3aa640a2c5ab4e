package utils

import "time"

// Now returns current time (useful for mocking in tests)
var Now = time.Now

// UnixMillis returns t as milliseconds since the epoch, the unit used for
// every timestamp on the wire.
func UnixMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// IsExpired reports whether timestamp is older than ttl as of now.
func IsExpired(timestamp, now time.Time, ttl time.Duration) bool {
	return now.Sub(timestamp) > ttl
}
