// Package driver is the outermost recurring loop. Every tick it applies due
// staged changes, then visits each user and runs the daily evaluation or
// weekly settlement only when that user's local clock is at the designated
// moment, so each user-local boundary fires at most once per tick cycle.
package driver

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/anteuphq/anteup/internal/accrual"
	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/schedule"
	"github.com/anteuphq/anteup/internal/settlement"
	"github.com/anteuphq/anteup/internal/staged"
)

// Store is the slice of storage the driver needs.
type Store interface {
	ListUsers() ([]models.User, error)
}

type Driver struct {
	store      Store
	accrual    *accrual.Engine
	settlement *settlement.Engine
	staged     *staged.Applier
	log        *log.Logger

	interval time.Duration
	maxJobs  int
}

func New(store Store, accrualEngine *accrual.Engine, settlementEngine *settlement.Engine, applier *staged.Applier, logger *log.Logger) *Driver {
	return &Driver{
		store:      store,
		accrual:    accrualEngine,
		settlement: settlementEngine,
		staged:     applier,
		log:        logger,
		interval:   constants.TickInterval,
		maxJobs:    constants.MaxConcurrentUserJobs,
	}
}

// Run ticks until the context is canceled. The first tick fires immediately
// so a restarted engine does not wait a full interval.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.Tick(ctx, now)
		}
	}
}

// Tick runs one pass over all users. User jobs run concurrently up to a cap
// and are isolated from each other: one user's failure is logged, never
// propagated to the batch.
func (d *Driver) Tick(ctx context.Context, now time.Time) {
	if err := d.staged.ApplyDue(ctx, now); err != nil {
		d.log.Error("staged change pass failed", "err", err)
	}

	users, err := d.store.ListUsers()
	if err != nil {
		d.log.Error("failed to list users", "err", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxJobs)

	for _, user := range users {
		user := user
		g.Go(func() error {
			d.runUser(ctx, user, now)
			return nil
		})
	}

	_ = g.Wait()
}

func (d *Driver) runUser(ctx context.Context, user models.User, now time.Time) {
	loc, err := schedule.LoadLocation(user.Timezone)
	if err != nil {
		// Data-quality warning, not fatal: the user is evaluated on UTC
		// boundaries until the account record is fixed.
		d.log.Warn("user has invalid timezone", "user_id", user.ID, "err", err)
	}

	localNow := now.In(loc)

	if localNow.Hour() == constants.DailyEvaluationHour {
		if err := d.accrual.EvaluateOwner(ctx, user, now, loc); err != nil {
			d.log.Error("accrual pass failed", "user_id", user.ID, "err", err)
		}
	}

	if localNow.Weekday() == constants.SettlementWeekday && localNow.Hour() == constants.SettlementHour {
		if err := d.settlement.SettleUser(ctx, user); err != nil {
			d.log.Error("settlement pass failed", "user_id", user.ID, "err", err)
		}
	}
}
