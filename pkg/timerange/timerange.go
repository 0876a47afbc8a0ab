// Package timerange holds the wall-clock and interval arithmetic used by
// doctor scheduling. Clock times are minute offsets from midnight.
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

// ParseError reports a malformed clock time or date.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

// ToMinutes parses "HH:MM" into minutes since midnight. Each part is one or
// two digits; hour must be 0-23 and minute 0-59.
func ToMinutes(hhmm string) (int, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, &ParseError{Input: hhmm, Reason: "expected HH:MM"}
	}
	hour, ok := parseClockPart(parts[0])
	if !ok || hour > 23 {
		return 0, &ParseError{Input: hhmm, Reason: "hour must be 00-23"}
	}
	minute, ok := parseClockPart(parts[1])
	if !ok || minute > 59 {
		return 0, &ParseError{Input: hhmm, Reason: "minute must be 00-59"}
	}
	return hour*60 + minute, nil
}

func parseClockPart(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// FormatMinutes renders minutes since midnight as zero-padded "HH:MM".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// IsWithinRange reports whether [slotStart, slotEnd] lies inside
// [rangeStart, rangeEnd]. Touching boundaries count as inside.
func IsWithinRange(slotStart, slotEnd, rangeStart, rangeEnd int) bool {
	return slotStart >= rangeStart && slotEnd <= rangeEnd
}

// IntervalsOverlap reports whether half-open [startA, endA) and
// [startB, endB) intersect. Adjacent intervals do not overlap.
func IntervalsOverlap(startA, endA, startB, endB int) bool {
	return startA < endB && startB < endA
}

// Interval is a half-open span of absolute time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Of returns the interval [start, start+d).
func Of(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Weekday is a lower-case English day name as stored on availability
// windows.
type Weekday string

const (
	Sunday    Weekday = "sunday"
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
)

var weekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// DayOf returns the weekday name of t in t's own location.
func DayOf(t time.Time) Weekday {
	return weekdays[t.Weekday()]
}

// ParseWeekday accepts any case of an English day name.
func ParseWeekday(s string) (Weekday, bool) {
	d := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, w := range weekdays {
		if w == d {
			return d, true
		}
	}
	return "", false
}

// ParseDate parses "YYYY-MM-DD" as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// ParseDateTime accepts RFC 3339 or a zone-less "YYYY-MM-DDTHH:MM[:SS]"
// interpreted in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Input: s, Reason: "expected RFC 3339 date-time"}
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// At returns the instant minutes after midnight on day's date.
func At(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location())
}

// MinuteOfDay returns minutes since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
