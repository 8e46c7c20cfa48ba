// Package timeutil provides calendar-day utilities for habit tracking.
// Habit entries are keyed by calendar date, not by instant, so every date
// handled by the engine is normalized to midnight UTC of that civil day.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire/storage format of a calendar day.
const DateLayout = "2006-01-02"

// Clock abstracts the current time so that "today" is injectable in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now implements Clock.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time {
	return c.At
}

// Today returns the calendar day of clock.Now() as seen in the clock's own location.
func Today(clock Clock) time.Time {
	return DateOf(clock.Now())
}

// Date creates a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar day of t, read in t's own location,
// as midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsDate reports whether t is already a normalized calendar day.
func IsDate(t time.Time) bool {
	return t.Location() == time.UTC && t.Equal(DateOf(t))
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid date %q: %w", value, err)
	}
	return t, nil
}

// FormatDate formats a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayNumber returns the number of days since 1970-01-01 for a calendar day.
func DayNumber(t time.Time) int {
	d := DateOf(t)
	return int(d.Unix() / 86400)
}

// DayDiff returns b - a in whole calendar days (negative if b is before a).
func DayDiff(a, b time.Time) int {
	return DayNumber(b) - DayNumber(a)
}

// DaysBetween returns the absolute number of days between two calendar days.
func DaysBetween(t1, t2 time.Time) int {
	days := DayDiff(t1, t2)
	if days < 0 {
		days = -days
	}
	return days
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return DayNumber(t1) == DayNumber(t2)
}

// IsConsecutiveDay checks if t2 is the day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return DayDiff(t1, t2) == 1
}

// StartOfWeek returns the Monday of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	d := DateOf(t)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// EndOfWeek returns the Sunday of the week containing t.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 6)
}

// StartOfMonth returns the first day of the month containing t.
func StartOfMonth(t time.Time) time.Time {
	d := DateOf(t)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last day of the month containing t.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, -1)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIODS
// ══════════════════════════════════════════════════════════════════════════════

// Period is the unit in which consecutiveness is measured.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// PeriodIndex maps a calendar day to a monotonically increasing index of
// its period, so that two periods are consecutive iff their indexes differ by 1.
func PeriodIndex(p Period, t time.Time) int {
	switch p {
	case PeriodWeek:
		// 1970-01-01 was a Thursday; shift so that weeks start on Monday.
		n := DayNumber(t) + 3
		if n < 0 {
			return (n - 6) / 7
		}
		return n / 7
	case PeriodMonth:
		d := DateOf(t)
		return d.Year()*12 + int(d.Month()) - 1
	default:
		return DayNumber(t)
	}
}

// PeriodStart returns the first calendar day of the period containing t.
func PeriodStart(p Period, t time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return StartOfWeek(t)
	case PeriodMonth:
		return StartOfMonth(t)
	default:
		return DateOf(t)
	}
}

// PeriodEnd returns the last calendar day of the period containing t.
func PeriodEnd(p Period, t time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return EndOfWeek(t)
	case PeriodMonth:
		return EndOfMonth(t)
	default:
		return DateOf(t)
	}
}
