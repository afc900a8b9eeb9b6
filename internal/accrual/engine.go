// Package accrual turns "due and unsatisfied" into immutable penalty ledger
// entries, exactly once per habit per local day or week.
package accrual

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/progress"
	"github.com/anteuphq/anteup/internal/schedule"
	"github.com/anteuphq/anteup/internal/storage"
	"github.com/anteuphq/anteup/internal/verification"
)

// Store is the slice of storage the accrual engine needs.
type Store interface {
	ListActiveHabitsByOwner(ownerID string) ([]models.Habit, error)
	SaveHabit(models.Habit) error
	InsertPenalty(models.Penalty) error
}

type Engine struct {
	store         Store
	verifications *verification.Reader
	progress      *progress.Tracker
	log           *log.Logger
}

func NewEngine(store Store, verifications *verification.Reader, tracker *progress.Tracker, logger *log.Logger) *Engine {
	return &Engine{
		store:         store,
		verifications: verifications,
		progress:      tracker,
		log:           logger,
	}
}

// EvaluateOwner runs the daily and weekly checks for one user at their local
// evaluation moment. Per-habit failures are logged and skipped so one bad
// habit cannot block the rest of the owner's evaluation.
func (e *Engine) EvaluateOwner(ctx context.Context, owner models.User, now time.Time, loc *time.Location) error {
	habits, err := e.store.ListActiveHabitsByOwner(owner.ID)
	if err != nil {
		return err
	}

	for _, habit := range habits {
		if err := ctx.Err(); err != nil {
			return err
		}

		var evalErr error
		switch habit.ScheduleType {
		case models.ScheduleDaily:
			evalErr = e.evaluateDaily(habit, now, loc)
		case models.ScheduleWeekly:
			evalErr = e.evaluateWeekly(habit, now, loc)
		}
		if evalErr != nil {
			e.log.Error("habit evaluation failed",
				"habit_id", habit.ID, "user_id", owner.ID, "err", evalErr)
		}
	}
	return nil
}

// evaluateDaily checks yesterday (in the owner's timezone) for one daily
// habit and records a penalty if it was due and unverified.
func (e *Engine) evaluateDaily(habit models.Habit, now time.Time, loc *time.Location) error {
	yesterday := now.In(loc).AddDate(0, 0, -1)
	yesterdayDate := yesterday.Format(constants.DateFormat)

	// First-day grace period: the creation day itself is never penalized.
	createdDate := habit.CreatedAt.In(loc).Format(constants.DateFormat)
	if yesterdayDate <= createdDate {
		return nil
	}

	if !schedule.IsDueOn(habit, yesterday) {
		return nil
	}

	dayStart, dayEnd, err := schedule.DayWindow(yesterdayDate, loc)
	if err != nil {
		return err
	}

	satisfied, err := e.verifications.Satisfied(habit.ID, dayStart, dayEnd)
	if err != nil {
		return err
	}
	if satisfied {
		return nil
	}

	return e.recordPenalty(habit, yesterdayDate, habit.PenaltyAmount)
}

// evaluateWeekly settles the week that ended yesterday, if any. The check
// fires on the first day of a new week (the habit's week-start weekday) and
// charges penalty_amount per missed completion.
func (e *Engine) evaluateWeekly(habit models.Habit, now time.Time, loc *time.Location) error {
	localNow := now.In(loc)
	if int(localNow.Weekday()) != habit.WeekStartDay {
		return nil
	}

	yesterday := localNow.AddDate(0, 0, -1)
	weekStart, weekEnd := schedule.WeekBounds(yesterday, habit.WeekStartDay)

	// A habit created during or after the week that just ended gets its
	// grace: only weeks that began after creation day are penalized in
	// full, and the first week uses the prorated target.
	created := habit.CreatedAt.In(loc)
	if created.After(weekEnd) {
		return nil
	}

	row, err := e.progress.FetchOrCreate(habit, yesterday)
	if err != nil {
		return err
	}

	missed := row.TargetCompletions - row.CurrentCompletions
	if missed <= 0 {
		return nil
	}

	total := habit.PenaltyAmount.Mul(decimal.NewFromInt(int64(missed)))
	return e.recordPenalty(habit, weekStart.Format(constants.DateFormat), total)
}

// recordPenalty inserts the ledger entry and decrements the streak once.
// A conflict means the day/week was already evaluated (an overlapping tick
// or a re-run); it is deliberately not an error.
func (e *Engine) recordPenalty(habit models.Habit, penaltyDate string, amount decimal.Decimal) error {
	p := models.Penalty{
		ID:            uuid.NewString(),
		HabitID:       habit.ID,
		UserID:        habit.OwnerID,
		RecipientID:   habit.RecipientID,
		Amount:        amount,
		PenaltyDate:   penaltyDate,
		IsPaid:        false,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := e.store.InsertPenalty(p); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.log.Debug("penalty already recorded", "habit_id", habit.ID, "date", penaltyDate)
			return nil
		}
		return err
	}

	habit.Streak--
	if err := e.store.SaveHabit(habit); err != nil {
		// The ledger entry is the source of truth; a failed streak update
		// is a non-critical side effect.
		e.log.Warn("failed to update streak", "habit_id", habit.ID, "err", err)
	}

	e.log.Info("penalty recorded",
		"habit_id", habit.ID, "user_id", habit.OwnerID, "date", penaltyDate, "amount", amount)
	return nil
}
