package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/progress"
	"github.com/anteuphq/anteup/internal/schedule"
	"github.com/anteuphq/anteup/internal/verification"
)

type VerifyCmd struct {
	Habit string `arg:"" help:"Habit ID to record a completed verification for."`
}

// Run records a completed verification, the same write path the external
// verification pipeline uses, and folds it into the weekly counter.
func (c *VerifyCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	habit, err := ctx.Store.GetHabit(c.Habit)
	if err != nil {
		return err
	}

	owner, err := ctx.Store.GetUser(habit.OwnerID)
	if err != nil {
		return err
	}

	loc, err := schedule.LoadLocation(owner.Timezone)
	if err != nil {
		ctx.Log.Warn("owner has invalid timezone", "user_id", owner.ID, "err", err)
	}

	now := time.Now()
	v := models.HabitVerification{
		ID:         uuid.NewString(),
		HabitID:    habit.ID,
		Status:     models.VerificationCompleted,
		VerifiedAt: now,
	}
	if err := ctx.Store.InsertVerification(v); err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}

	reader := verification.NewReader(ctx.Store)
	tracker := progress.NewTracker(ctx.Store, reader)
	if err := tracker.RecordVerification(habit, now, loc); err != nil {
		return fmt.Errorf("failed to update weekly progress: %w", err)
	}

	fmt.Printf("Recorded verification for %s (%s)\n", habit.Name, habit.ID)
	return nil
}
