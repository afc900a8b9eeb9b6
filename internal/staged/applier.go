// Package staged applies deferred habit edits and deletes at their effective
// date. Changes are staged with the owner's "tomorrow" so a mid-day edit can
// never retroactively change whether today was due.
package staged

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/schedule"
)

// Store is the slice of storage the applier needs.
type Store interface {
	GetHabit(id string) (models.Habit, error)
	SaveHabit(models.Habit) error
	SoftDeleteHabit(id string, at time.Time) error
	StageChange(models.StagedHabitChange) error
	ListPendingStagedChanges() ([]models.StagedHabitChange, error)
	MarkStagedChangeApplied(id string, at time.Time) error
}

type Applier struct {
	store Store
	log   *log.Logger
}

func NewApplier(store Store, logger *log.Logger) *Applier {
	return &Applier{store: store, log: logger}
}

// StageEdit records a pending edit effective from the owner's tomorrow.
func (a *Applier) StageEdit(change models.StagedHabitChange, ownerTZ string, now time.Time) error {
	return a.stage(change, models.ChangeEdit, ownerTZ, now)
}

// StageDelete records a pending delete effective from the owner's tomorrow.
func (a *Applier) StageDelete(habitID, ownerTZ string, now time.Time) error {
	return a.stage(models.StagedHabitChange{HabitID: habitID}, models.ChangeDelete, ownerTZ, now)
}

func (a *Applier) stage(change models.StagedHabitChange, kind models.ChangeType, ownerTZ string, now time.Time) error {
	loc, err := schedule.LoadLocation(ownerTZ)
	if err != nil {
		a.log.Warn("staging with fallback timezone", "habit_id", change.HabitID, "err", err)
	}

	change.ID = uuid.NewString()
	change.ChangeType = kind
	change.EffectiveDate = now.In(loc).AddDate(0, 0, 1).Format(constants.DateFormat)
	change.Timezone = ownerTZ
	change.CreatedAt = now.UTC()

	if err := a.store.StageChange(change); err != nil {
		return fmt.Errorf("failed to stage %s for habit %s: %w", kind, change.HabitID, err)
	}
	return nil
}

// ApplyDue scans pending changes and applies every one whose effective date
// has arrived in its staged timezone. Per-change failures are logged and
// skipped; the change stays pending for the next pass.
func (a *Applier) ApplyDue(ctx context.Context, now time.Time) error {
	pending, err := a.store.ListPendingStagedChanges()
	if err != nil {
		return fmt.Errorf("failed to list staged changes: %w", err)
	}

	for _, change := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		loc, err := schedule.LoadLocation(change.Timezone)
		if err != nil {
			a.log.Warn("staged change has bad timezone, using UTC",
				"change_id", change.ID, "err", err)
		}

		// Effective in the staged timezone, not server time.
		if schedule.LocalToday(now, loc) < change.EffectiveDate {
			continue
		}

		if err := a.apply(change, now); err != nil {
			a.log.Error("failed to apply staged change",
				"change_id", change.ID, "habit_id", change.HabitID, "err", err)
			continue
		}

		if err := a.store.MarkStagedChangeApplied(change.ID, now); err != nil {
			a.log.Error("failed to mark staged change applied",
				"change_id", change.ID, "err", err)
		}
	}
	return nil
}

func (a *Applier) apply(change models.StagedHabitChange, now time.Time) error {
	if change.ChangeType == models.ChangeDelete {
		if err := a.store.SoftDeleteHabit(change.HabitID, now); err != nil {
			return err
		}
		a.log.Info("habit deleted", "habit_id", change.HabitID)
		return nil
	}

	habit, err := a.store.GetHabit(change.HabitID)
	if err != nil {
		return err
	}

	if change.Name != nil {
		habit.Name = *change.Name
	}
	if change.ScheduleType != nil {
		habit.ScheduleType = *change.ScheduleType
	}
	if change.Weekdays != nil {
		habit.Weekdays = change.Weekdays
	}
	if change.WeeklyTarget != nil {
		habit.WeeklyTarget = change.WeeklyTarget
	}
	if change.WeekStartDay != nil {
		habit.WeekStartDay = *change.WeekStartDay
	}
	if change.PenaltyAmount != nil {
		habit.PenaltyAmount = *change.PenaltyAmount
	}
	if change.RecipientID != nil {
		habit.RecipientID = change.RecipientID
	}

	habit = normalize(habit)

	if err := a.store.SaveHabit(habit); err != nil {
		return err
	}
	a.log.Info("habit edit applied", "habit_id", habit.ID, "effective", change.EffectiveDate)
	return nil
}

// normalize enforces schedule-type constraints, substituting conservative
// defaults for fields that would otherwise violate them: daily habits carry
// a non-empty weekday set and no weekly target, weekly habits the inverse.
func normalize(h models.Habit) models.Habit {
	switch h.ScheduleType {
	case models.ScheduleDaily:
		if len(h.Weekdays) == 0 {
			h.Weekdays = []int{0, 1, 2, 3, 4, 5, 6}
		}
		h.WeeklyTarget = nil
	case models.ScheduleWeekly:
		h.Weekdays = nil
		if h.WeeklyTarget == nil || *h.WeeklyTarget < 1 {
			one := 1
			h.WeeklyTarget = &one
		}
		if h.WeekStartDay < 0 || h.WeekStartDay > 6 {
			h.WeekStartDay = 0
		}
	}
	return h
}
