package models

// WeeklyHabitProgress tracks completions for one habit within one local week.
// There is exactly one row per (habit, week_start_date); TargetCompletions is
// fixed when the row is created (partial target for the habit's first week).
type WeeklyHabitProgress struct {
	ID                 string `json:"id"`
	HabitID            string `json:"habit_id"`
	WeekStartDate      string `json:"week_start_date"` // YYYY-MM-DD
	CurrentCompletions int    `json:"current_completions"`
	TargetCompletions  int    `json:"target_completions"`
	IsWeekComplete     bool   `json:"is_week_complete"`
}
