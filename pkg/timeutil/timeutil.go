// Package timeutil provides timezone utilities for Western Indonesian Time
// (WIB, UTC+7). Timestamps shown to bot users are rendered in WIB regardless
// of where the process runs.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// JakartaTZ is the Jakarta timezone (UTC+7, no DST).
var JakartaTZ = time.FixedZone("Asia/Jakarta", 7*60*60)

// Now returns the current time in Jakarta timezone.
func Now() time.Time {
	return time.Now().In(JakartaTZ)
}

// ToJakarta converts a time to Jakarta timezone.
func ToJakarta(t time.Time) time.Time {
	return t.In(JakartaTZ)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatTimestamp includes seconds.
	FormatTimestamp = "2006-01-02 15:04:05"
)

// FormatJakarta formats a time in Jakarta timezone with the given layout.
func FormatJakarta(t time.Time, layout string) string {
	return ToJakarta(t).Format(layout)
}

// Timestamp formats a time as a full timestamp in Jakarta timezone.
func Timestamp(t time.Time) string {
	return FormatJakarta(t, FormatTimestamp)
}

// DateStr formats a time as a date string in Jakarta timezone.
func DateStr(t time.Time) string {
	return FormatJakarta(t, FormatDate)
}
