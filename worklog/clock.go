package worklog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 24 * 60

// ParseClock parses "HH:mm" into minutes since local midnight.
func ParseClock(hhmm string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 || !allDigits(h) || !allDigits(m) {
		return 0, &FormatError{Value: hhmm}
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, &FormatError{Value: hhmm}
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, &FormatError{Value: hhmm}
	}
	return hour*60 + minute, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatClock renders minutes since midnight as "HH:mm", wrapping past 24h.
func FormatClock(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ClockOf returns the local "HH:mm" of t.
func ClockOf(t time.Time) string {
	return t.Format("15:04")
}

// NormalizeCrossMidnight treats an end before start as falling on the next day.
func NormalizeCrossMidnight(startMinutes, endMinutes int) int {
	if endMinutes < startMinutes {
		return endMinutes + MinutesPerDay
	}
	return endMinutes
}

// DayOf returns the local calendar day containing t in loc.
func DayOf(t time.Time, loc *time.Location) DayRange {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return DayRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// ParseDay parses "YYYY-MM-DD" as a local calendar day in loc.
func ParseDay(s string, loc *time.Location) (DayRange, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return DayRange{}, &ValidationError{Field: "date", Message: fmt.Sprintf("%q must be YYYY-MM-DD", s)}
	}
	return DayOf(t, loc), nil
}

// ParseUTCOffset parses "+09:00", "-05:30" or "Z" into a fixed zone.
func ParseUTCOffset(offset string) (*time.Location, error) {
	if offset == "" || offset == "Z" || offset == "UTC" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, &ValidationError{Field: "utc_offset", Message: fmt.Sprintf("%q must be ±HH:MM", offset)}
	}
	_, secs := t.Zone()
	return time.FixedZone("UTC"+offset, secs), nil
}
