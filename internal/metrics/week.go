// Package metrics provides weekly training aggregates derived from the
// workout projections.
package metrics

import "time"

const daysPerWeek = 7

// WeekStart returns the Monday of t's week, truncated to a date in UTC.
// Weeks run Monday through Sunday.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()

	// time.Weekday numbers Sunday as 0; shift so Monday is 0.
	offset := (int(t.Weekday()) + 6) % daysPerWeek

	monday := t.AddDate(0, 0, -offset)

	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekEnd returns the Sunday of the week starting at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, daysPerWeek-1)
}
