// Package progress maintains the per-(habit, week) completion counters that
// the weekly accrual path reads at week end.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/schedule"
	"github.com/anteuphq/anteup/internal/storage"
	"github.com/anteuphq/anteup/internal/verification"
)

// Store is the slice of storage the tracker needs.
type Store interface {
	GetWeeklyProgress(habitID, weekStartDate string) (models.WeeklyHabitProgress, error)
	SaveWeeklyProgress(models.WeeklyHabitProgress) error
}

type Tracker struct {
	store         Store
	verifications *verification.Reader
}

func NewTracker(store Store, verifications *verification.Reader) *Tracker {
	return &Tracker{store: store, verifications: verifications}
}

// RecordVerification folds a new completed verification into the habit's
// weekly counter. Only the first completion of a local calendar day counts,
// so the caller must have inserted the verification row before calling.
// Daily and one-time habits have no weekly counter and are ignored.
func (t *Tracker) RecordVerification(habit models.Habit, verifiedAt time.Time, loc *time.Location) error {
	if habit.ScheduleType != models.ScheduleWeekly {
		return nil
	}

	localDay := verifiedAt.In(loc)
	day := localDay.Format(constants.DateFormat)

	dayStart, dayEnd, err := schedule.DayWindow(day, loc)
	if err != nil {
		return err
	}

	completions, err := t.verifications.CompletionsOn(habit.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	if completions > 1 {
		// The day already counted toward the week; skip the increment.
		return nil
	}

	row, err := t.FetchOrCreate(habit, localDay)
	if err != nil {
		return err
	}

	row.CurrentCompletions++
	row.IsWeekComplete = row.CurrentCompletions >= row.TargetCompletions

	if err := t.store.SaveWeeklyProgress(row); err != nil {
		return fmt.Errorf("failed to save weekly progress for habit %s: %w", habit.ID, err)
	}
	return nil
}

// FetchOrCreate returns the progress row for the week containing date,
// creating it with the right target if it does not exist yet. The target is
// fixed at creation: the full weekly target, except for the habit's first
// week which is prorated to the days remaining after creation.
func (t *Tracker) FetchOrCreate(habit models.Habit, date time.Time) (models.WeeklyHabitProgress, error) {
	weekStart, _ := schedule.WeekBounds(date, habit.WeekStartDay)
	weekStartDate := weekStart.Format(constants.DateFormat)

	row, err := t.store.GetWeeklyProgress(habit.ID, weekStartDate)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.WeeklyHabitProgress{}, err
	}

	row = models.WeeklyHabitProgress{
		ID:                uuid.NewString(),
		HabitID:           habit.ID,
		WeekStartDate:     weekStartDate,
		TargetCompletions: TargetForWeek(habit, weekStart),
	}
	if err := t.store.SaveWeeklyProgress(row); err != nil {
		return models.WeeklyHabitProgress{}, fmt.Errorf("failed to create weekly progress for habit %s: %w", habit.ID, err)
	}
	return row, nil
}

// TargetForWeek computes the completion target for the week beginning at
// weekStart, applying the partial-week proration when the habit was created
// inside that week.
func TargetForWeek(habit models.Habit, weekStart time.Time) int {
	created := habit.CreatedAt.In(weekStart.Location())
	_, weekEnd := schedule.WeekBounds(weekStart, habit.WeekStartDay)

	sameWeek := !created.Before(weekStart) && created.Before(weekEnd.AddDate(0, 0, 1))
	if sameWeek {
		return schedule.FirstWeekTarget(habit.Target(), created, weekStart)
	}
	return habit.Target()
}
