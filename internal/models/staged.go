package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChangeType string

const (
	ChangeEdit   ChangeType = "edit"
	ChangeDelete ChangeType = "delete"
)

// StagedHabitChange defers a habit edit or delete to a future effective date
// so a mid-day change can never retroactively alter whether "today" was due.
// For edits the nil fields mean "keep the current value". Timezone is the
// owner's timezone captured at staging time; EffectiveDate is a local date.
type StagedHabitChange struct {
	ID            string           `json:"id"`
	HabitID       string           `json:"habit_id"`
	ChangeType    ChangeType       `json:"change_type"`
	Name          *string          `json:"name,omitempty"`
	ScheduleType  *ScheduleType    `json:"schedule_type,omitempty"`
	Weekdays      []int            `json:"weekdays,omitempty"`
	WeeklyTarget  *int             `json:"weekly_target,omitempty"`
	WeekStartDay  *int             `json:"week_start_day,omitempty"`
	PenaltyAmount *decimal.Decimal `json:"penalty_amount,omitempty"`
	RecipientID   *string          `json:"recipient_id,omitempty"`
	EffectiveDate string           `json:"effective_date"` // YYYY-MM-DD
	Timezone      string           `json:"timezone"`
	AppliedAt     *time.Time       `json:"applied_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
