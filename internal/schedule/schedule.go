// Package schedule resolves due windows in each user's own timezone: local
// "today", week boundaries, and whether a habit was due on a given date.
// Everything here is pure calculation; callers pass the current time in.
package schedule

import (
	"fmt"
	"time"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
)

// Legacy rows written before accounts stored canonical IANA identifiers may
// carry a bare abbreviation. Normalize them before loading the location.
var abbreviationZones = map[string]string{
	"PST":  "America/Los_Angeles",
	"PDT":  "America/Los_Angeles",
	"MST":  "America/Denver",
	"MDT":  "America/Denver",
	"CST":  "America/Chicago",
	"CDT":  "America/Chicago",
	"EST":  "America/New_York",
	"EDT":  "America/New_York",
	"GMT":  "UTC",
	"BST":  "Europe/London",
	"CET":  "Europe/Berlin",
	"CEST": "Europe/Berlin",
	"IST":  "Asia/Kolkata",
	"JST":  "Asia/Tokyo",
	"AEST": "Australia/Sydney",
	"AEDT": "Australia/Sydney",
}

// LoadLocation resolves a stored timezone string to a *time.Location. Known
// abbreviations are mapped to their canonical IANA zone first. An unknown or
// invalid identifier falls back to UTC and returns an error the caller should
// log as a data-quality warning, never treat as fatal.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, fmt.Errorf("empty timezone")
	}
	if canonical, ok := abbreviationZones[tz]; ok {
		tz = canonical
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown timezone %q, falling back to UTC: %w", tz, err)
	}
	return loc, nil
}

// LocalToday formats now as a YYYY-MM-DD date in the given location.
func LocalToday(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(constants.DateFormat)
}

// ParseDate parses a YYYY-MM-DD date string into a midnight time in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(constants.DateFormat, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// DayWindow returns the absolute-time bounds [start, end) of the local
// calendar day named by date in loc. Using AddDate keeps the window correct
// across DST transitions where a day is not 24 hours.
func DayWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// WeekBounds returns the start and end dates (inclusive) of the week
// containing date, where weeks begin on weekStartDay (0=Sunday..6=Saturday).
func WeekBounds(date time.Time, weekStartDay int) (time.Time, time.Time) {
	offset := (int(date.Weekday()) - weekStartDay + 7) % 7
	start := date.AddDate(0, 0, -offset)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 6)
}

// IsDueOn reports whether a habit was due on the given local date. Daily
// habits are due on their required weekdays; weekly habits are only evaluated
// at week end, never per day; one-time habits are never due on a schedule.
func IsDueOn(h models.Habit, date time.Time) bool {
	switch h.ScheduleType {
	case models.ScheduleDaily:
		return h.IsRequiredWeekday(int(date.Weekday()))
	default:
		return false
	}
}

// FirstWeekTarget prorates a weekly target for a habit's first, partial week:
// max(1, floor(target * daysRemaining / 7)), where daysRemaining counts the
// days after the creation date up to and including the end of that week.
func FirstWeekTarget(weeklyTarget int, createdDate, weekStart time.Time) int {
	intoWeek := daysBetween(weekStart, createdDate)
	if intoWeek < 0 {
		intoWeek = 0
	}
	daysRemaining := 7 - intoWeek
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	target := weeklyTarget * daysRemaining / 7
	if target < 1 {
		target = 1
	}
	return target
}

// daysBetween counts calendar days from a to b, ignoring clock time.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	a = time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	b = time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
