package util

import "time"

// NowMillis returns the current time in milliseconds since Unix epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MillisToTime converts milliseconds since Unix epoch to time.Time.
func MillisToTime(millis int64) time.Time {
	return time.UnixMilli(millis)
}

// FormatMillis formats milliseconds since epoch in a human-readable way.
// Zero renders as "-".
func FormatMillis(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return MillisToTime(millis).Format("2006-01-02 15:04")
}

// ParseDuration parses a Go duration string, returning fallback when s is
// empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
