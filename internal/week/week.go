// Package week holds the calendar arithmetic behind the 7-day grid. Every
// function is pure; times are interpreted in their own Location.
package week

import (
	"strconv"
	"strings"
	"time"
)

// DefaultStart is the week start used when none is configured.
const DefaultStart = time.Sunday

// Midnight returns 00:00 of t's calendar day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Start returns midnight of the first day of the week containing t.
func Start(t time.Time, first time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(first) + 7) % 7
	return Midnight(t).AddDate(0, 0, -offset)
}

// End returns the last instant of the week containing t.
func End(t time.Time, first time.Weekday) time.Time {
	return Start(t, first).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// Days returns 7 consecutive calendar days beginning at start. Time of day
// is carried over from start.
func Days(start time.Time) []time.Time {
	days := make([]time.Time, 0, 7)
	for i := 0; i < 7; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days
}

// Hours returns 0..23.
func Hours() []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	return hours
}

// FormatHour renders an hour of day on a 12-hour clock ("12 AM", "3 PM").
func FormatHour(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour == 12:
		return "12 PM"
	case hour < 12:
		return strconv.Itoa(hour) + " AM"
	default:
		return strconv.Itoa(hour-12) + " PM"
	}
}

// FormatDayHeader renders the column label, e.g. "Mon 2".
func FormatDayHeader(t time.Time) string {
	return t.Format("Mon 2")
}

// FormatMonth renders the grid title, e.g. "January 2006".
func FormatMonth(t time.Time) string {
	return t.Format("January 2006")
}

// SameDay reports whether a and b fall on the same calendar day. b is
// compared in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SameWeek reports whether a and b fall in the same week.
func SameWeek(a, b time.Time, first time.Weekday) bool {
	return SameDay(Start(a, first), Start(b.In(a.Location()), first))
}

// IsToday reports whether t is on the same calendar day as now.
func IsToday(t, now time.Time) bool {
	return SameDay(t, now)
}

// Add shifts t by n weeks; n may be negative.
func Add(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// ParseWeekday maps "monday".."sunday" (any case) to a time.Weekday.
// Unknown values return DefaultStart.
func ParseWeekday(s string) time.Weekday {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == s {
			return d
		}
	}
	return DefaultStart
}
