package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleOneTime ScheduleType = "one_time"
)

// Habit is a commitment owned by a user, with an optional recipient who is
// paid out when the owner misses. Weekdays use 0=Sunday..6=Saturday and apply
// to daily habits only; WeeklyTarget and WeekStartDay apply to weekly habits.
type Habit struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	RecipientID   *string         `json:"recipient_id,omitempty"`
	Name          string          `json:"name"`
	ScheduleType  ScheduleType    `json:"schedule_type"`
	Weekdays      []int           `json:"weekdays,omitempty"`
	WeeklyTarget  *int            `json:"weekly_target,omitempty"`
	WeekStartDay  int             `json:"week_start_day"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	Streak        int             `json:"streak"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// IsRequiredWeekday reports whether wd (0=Sunday..6=Saturday) is one of the
// habit's required weekdays.
func (h Habit) IsRequiredWeekday(wd int) bool {
	for _, d := range h.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// Target returns the full weekly target, defaulting to 1 when unset.
func (h Habit) Target() int {
	if h.WeeklyTarget == nil || *h.WeeklyTarget < 1 {
		return 1
	}
	return *h.WeeklyTarget
}
