// Package timeutil provides timezone utilities for the São Paulo timezone (UTC-3).
// All disciplinary records carry calendar dates local to the school, so date
// arithmetic must happen in a fixed zone rather than server-local time.
// Brazil abolished DST in 2019, so the offset is constant year-round.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// SaoPauloTZ is the São Paulo timezone (UTC-3, no DST since 2019).
var SaoPauloTZ = time.FixedZone("America/Sao_Paulo", -3*60*60)

// ISODate is the wire format for calendar dates (dataFato and friends).
const ISODate = "2006-01-02"

// Now returns the current time in São Paulo timezone.
func Now() time.Time {
	return time.Now().In(SaoPauloTZ)
}

// Today returns the current date at midnight in São Paulo timezone.
func Today() time.Time {
	return StartOfDay(Now())
}

// ToSaoPaulo converts a time to São Paulo timezone.
func ToSaoPaulo(t time.Time) time.Time {
	return t.In(SaoPauloTZ)
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a midnight time in São Paulo timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, SaoPauloTZ)
}

// ParseDate parses an ISO date string ("2006-01-02") in São Paulo timezone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ISODate, s, SaoPauloTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a time as an ISO date string in São Paulo timezone.
func FormatDate(t time.Time) string {
	return ToSaoPaulo(t).Format(ISODate)
}

// StartOfDay returns the start of the day (00:00:00) in São Paulo timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToSaoPaulo(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, SaoPauloTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in São Paulo timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToSaoPaulo(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, SaoPauloTZ)
}

// DaysBetween returns the number of whole calendar days from a to b,
// comparing dates only. Returns a negative count when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)) / (24 * time.Hour))
}

// SameDay reports whether two times fall on the same São Paulo calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// StartOfMonth returns the start of the month in São Paulo timezone.
func StartOfMonth(t time.Time) time.Time {
	local := ToSaoPaulo(t)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, SaoPauloTZ)
}

// EndOfMonth returns the end of the month in São Paulo timezone.
func EndOfMonth(t time.Time) time.Time {
	start := StartOfMonth(t)
	return EndOfDay(start.AddDate(0, 1, -1))
}

// InRange reports whether t falls within [from, to], comparing dates only.
func InRange(t, from, to time.Time) bool {
	day := StartOfDay(t)
	return !day.Before(StartOfDay(from)) && !day.After(StartOfDay(to))
}
