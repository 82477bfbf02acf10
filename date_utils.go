package main

import (
	"fmt"
	"time"
)

// All day-offset arithmetic in the engine goes through this file. The
// scheduler, the pair matcher, and the overdue sweep share these
// helpers so an off-by-one fix lands in exactly one place.

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func toDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isAfterDay(t1, t2 time.Time) bool {
	// Compare only the year, month, and day
	return toDay(t1).After(toDay(t2))
}

func isBeforeDay(t1, t2 time.Time) bool {
	return toDay(t1).Before(toDay(t2))
}

func sameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// withinDayWindow reports whether t falls on or between start and end,
// at calendar-day granularity (both bounds inclusive).
func withinDayWindow(t, start, end time.Time) bool {
	return !isBeforeDay(t, start) && !isAfterDay(t, end)
}

func daysBetween(start, end time.Time) int {
	return int(toDay(end).Sub(toDay(start)).Hours() / 24)
}

func yearsBetween(start, end time.Time) int {
	// Get difference in years
	years := end.Year() - start.Year()

	// Adjust if end month or day is before start month or day
	if end.Month() < start.Month() || (end.Month() == start.Month() && end.Day() < start.Day()) {
		years--
	}

	return years
}

// monthBounds resolves a YYYY-MM billing month to its first and last
// calendar day.
func monthBounds(month string) (time.Time, time.Time, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unable to parse billing month: %s", month)
	}
	last := first.AddDate(0, 1, -1)
	return first, last, nil
}

// daysLeftInMonth counts the days strictly after asOf through the end
// of its month, matching the "can the shortfall still be corrected"
// projection.
func daysLeftInMonth(asOf time.Time) int {
	lastDay := time.Date(asOf.Year(), asOf.Month()+1, 0, 0, 0, 0, 0, asOf.Location())
	return lastDay.Day() - asOf.Day()
}

func parseDate(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	var t time.Time
	var err error
	for _, layout := range layouts {
		t, err = time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
