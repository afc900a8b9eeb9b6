package schedule

import (
	"testing"
	"time"

	"github.com/anteuphq/anteup/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLoadLocation_CanonicalZone(t *testing.T) {
	loc, err := LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Errorf("expected America/New_York, got %s", loc)
	}
}

func TestLoadLocation_Abbreviation(t *testing.T) {
	loc, err := LoadLocation("PDT")
	if err != nil {
		t.Fatalf("expected abbreviation to normalize, got error: %v", err)
	}
	if loc.String() != "America/Los_Angeles" {
		t.Errorf("expected America/Los_Angeles for PDT, got %s", loc)
	}
}

func TestLoadLocation_UnknownFallsBackToUTC(t *testing.T) {
	loc, err := LoadLocation("Not/AZone")
	if err == nil {
		t.Fatal("expected an error for unknown timezone")
	}
	if loc != time.UTC {
		t.Errorf("expected UTC fallback, got %s", loc)
	}
}

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		name         string
		date         time.Time
		weekStartDay int
		wantStart    string
		wantEnd      string
	}{
		{"midweek sunday start", date(2025, time.December, 31), 0, "2025-12-28", "2026-01-03"}, // Wednesday
		{"on week start", date(2025, time.December, 28), 0, "2025-12-28", "2026-01-03"},         // Sunday
		{"monday start", date(2025, time.December, 31), 1, "2025-12-29", "2026-01-04"},
		{"day before week start", date(2025, time.December, 27), 0, "2025-12-21", "2025-12-27"}, // Saturday
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := WeekBounds(tt.date, tt.weekStartDay)
			if got := start.Format("2006-01-02"); got != tt.wantStart {
				t.Errorf("start: got %s, want %s", got, tt.wantStart)
			}
			if got := end.Format("2006-01-02"); got != tt.wantEnd {
				t.Errorf("end: got %s, want %s", got, tt.wantEnd)
			}
		})
	}
}

func TestIsDueOn(t *testing.T) {
	daily := models.Habit{
		ScheduleType: models.ScheduleDaily,
		Weekdays:     []int{1, 3, 5}, // Mon, Wed, Fri
	}

	wednesday := date(2025, time.December, 31)
	thursday := date(2026, time.January, 1)

	if !IsDueOn(daily, wednesday) {
		t.Error("expected daily habit due on Wednesday")
	}
	if IsDueOn(daily, thursday) {
		t.Error("expected daily habit not due on Thursday")
	}

	weekly := models.Habit{ScheduleType: models.ScheduleWeekly}
	if IsDueOn(weekly, wednesday) {
		t.Error("weekly habits are evaluated at week end, never due per day")
	}
}

func TestFirstWeekTarget(t *testing.T) {
	tests := []struct {
		name      string
		target    int
		created   time.Time
		weekStart time.Time
		want      int
	}{
		// target 7, Sunday-start week, created Thursday: 3 days remain
		{"thursday creation", 7, date(2025, time.December, 4), date(2025, time.November, 30), 3},
		// created on the week start gets the full target
		{"created on week start", 7, date(2025, time.November, 30), date(2025, time.November, 30), 7},
		// created on the last day still owes at least one
		{"created on last day", 7, date(2025, time.December, 6), date(2025, time.November, 30), 1},
		{"small target floors to one", 2, date(2025, time.December, 4), date(2025, time.November, 30), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstWeekTarget(tt.target, tt.created, tt.weekStart)
			if got != tt.want {
				t.Errorf("FirstWeekTarget(%d) = %d, want %d", tt.target, got, tt.want)
			}
		})
	}
}

func TestDayWindow(t *testing.T) {
	loc, err := LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}

	start, end, err := DayWindow("2025-12-31", loc)
	if err != nil {
		t.Fatalf("DayWindow failed: %v", err)
	}

	if start.Hour() != 0 || start.Day() != 31 {
		t.Errorf("unexpected window start: %v", start)
	}
	if got := end.Sub(start); got != 24*time.Hour {
		t.Errorf("expected 24h window on a non-DST day, got %v", got)
	}

	// Local midnight in Chicago is 06:00 UTC in winter.
	if got := start.UTC().Hour(); got != 6 {
		t.Errorf("expected window start at 06:00 UTC, got %02d:00", got)
	}
}

func TestLocalToday_CrossesDateLine(t *testing.T) {
	tokyo, err := LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}

	// 20:00 UTC on Dec 30 is already Dec 31 in Tokyo.
	now := time.Date(2025, time.December, 30, 20, 0, 0, 0, time.UTC)
	if got := LocalToday(now, tokyo); got != "2025-12-31" {
		t.Errorf("LocalToday in Tokyo = %s, want 2025-12-31", got)
	}
	if got := LocalToday(now, time.UTC); got != "2025-12-30" {
		t.Errorf("LocalToday in UTC = %s, want 2025-12-30", got)
	}
}
