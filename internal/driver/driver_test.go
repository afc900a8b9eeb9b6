package driver

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anteuphq/anteup/internal/accrual"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/payments"
	"github.com/anteuphq/anteup/internal/progress"
	"github.com/anteuphq/anteup/internal/settlement"
	"github.com/anteuphq/anteup/internal/staged"
	"github.com/anteuphq/anteup/internal/storage"
	"github.com/anteuphq/anteup/internal/verification"
)

type harness struct {
	store    *storage.SQLiteStore
	payments *payments.FakeClient
	driver   *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "anteup.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)
	client := payments.NewFakeClient()

	reader := verification.NewReader(store)
	tracker := progress.NewTracker(store, reader)
	accrualEngine := accrual.NewEngine(store, reader, tracker, logger)
	settlementEngine := settlement.NewEngine(store, client, logger)
	applier := staged.NewApplier(store, logger)

	return &harness{
		store:    store,
		payments: client,
		driver:   New(store, accrualEngine, settlementEngine, applier, logger),
	}
}

func (h *harness) seedUser(t *testing.T, id, tz string) models.User {
	t.Helper()
	user := models.User{
		ID:               id,
		Timezone:         tz,
		StripeCustomerID: "cus_" + id,
		PaymentMethodID:  "pm_" + id,
		CreatedAt:        time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.store.SaveUser(user))
	return user
}

func (h *harness) seedDailyHabit(t *testing.T, id, owner string) models.Habit {
	t.Helper()
	habit := models.Habit{
		ID:            id,
		OwnerID:       owner,
		Name:          "morning run",
		ScheduleType:  models.ScheduleDaily,
		Weekdays:      []int{0, 1, 2, 3, 4, 5, 6},
		PenaltyAmount: decimal.NewFromFloat(5.00),
		IsActive:      true,
		CreatedAt:     time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.store.SaveHabit(habit))
	return habit
}

func TestTick_AccrualRunsAtLocalMidnightHour(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")
	h.seedDailyHabit(t, "habit-1", user.ID)

	// Wednesday 00:30 UTC: inside the evaluation hour.
	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 0, 30, 0, 0, time.UTC))

	unpaid, err := h.store.ListUnpaidPenalties(user.ID)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "2025-12-30", unpaid[0].PenaltyDate)
}

func TestTick_NoAccrualOutsideEvaluationHour(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")
	h.seedDailyHabit(t, "habit-1", user.ID)

	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 12, 30, 0, 0, time.UTC))

	unpaid, err := h.store.ListUnpaidPenalties(user.ID)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestTick_EvaluationFollowsUserTimezone(t *testing.T) {
	h := newHarness(t)
	// 15:30 UTC on Dec 30 is 00:30 Dec 31 in Tokyo, so the Tokyo user's
	// evaluation fires while the UTC user's midnight is still hours away.
	tokyoUser := h.seedUser(t, "user-tokyo", "Asia/Tokyo")
	utcUser := h.seedUser(t, "user-utc", "UTC")
	h.seedDailyHabit(t, "habit-tokyo", tokyoUser.ID)
	h.seedDailyHabit(t, "habit-utc", utcUser.ID)

	h.driver.Tick(context.Background(), time.Date(2025, time.December, 30, 15, 30, 0, 0, time.UTC))

	tokyoUnpaid, err := h.store.ListUnpaidPenalties(tokyoUser.ID)
	require.NoError(t, err)
	require.Len(t, tokyoUnpaid, 1)
	assert.Equal(t, "2025-12-30", tokyoUnpaid[0].PenaltyDate, "Tokyo's yesterday in Tokyo local dates")

	utcUnpaid, err := h.store.ListUnpaidPenalties(utcUser.ID)
	require.NoError(t, err)
	assert.Empty(t, utcUnpaid, "UTC user's midnight has not arrived")
}

func TestTick_RepeatedTickSameHourIdempotent(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")
	h.seedDailyHabit(t, "habit-1", user.ID)

	now := time.Date(2025, time.December, 31, 0, 10, 0, 0, time.UTC)
	h.driver.Tick(context.Background(), now)
	h.driver.Tick(context.Background(), now.Add(20*time.Minute))

	unpaid, err := h.store.ListUnpaidPenalties(user.ID)
	require.NoError(t, err)
	assert.Len(t, unpaid, 1, "a restarted tick in the same hour must not double-accrue")
}

func TestTick_VerifiedDayNotPenalized(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")
	habit := h.seedDailyHabit(t, "habit-1", user.ID)

	require.NoError(t, h.store.InsertVerification(models.HabitVerification{
		ID:         "v1",
		HabitID:    habit.ID,
		Status:     models.VerificationCompleted,
		VerifiedAt: time.Date(2025, time.December, 30, 14, 0, 0, 0, time.UTC),
	}))

	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 0, 30, 0, 0, time.UTC))

	unpaid, err := h.store.ListUnpaidPenalties(user.ID)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestTick_SettlementFiresSundayMidnight(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")

	require.NoError(t, h.store.InsertPenalty(models.Penalty{
		ID:            "p1",
		HabitID:       "habit-old",
		UserID:        user.ID,
		Amount:        decimal.NewFromFloat(10.00),
		PenaltyDate:   "2025-12-29",
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     time.Date(2025, time.December, 30, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2025, time.December, 30, 0, 0, 0, 0, time.UTC),
	}))

	// Sunday Jan 4 2026, 00:30 UTC.
	h.driver.Tick(context.Background(), time.Date(2026, time.January, 4, 0, 30, 0, 0, time.UTC))

	require.Len(t, h.payments.Charges, 1)
	assert.True(t, h.payments.Charges[0].Amount.Equal(decimal.NewFromFloat(10.00)))
}

func TestTick_NoSettlementMidWeek(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")

	require.NoError(t, h.store.InsertPenalty(models.Penalty{
		ID:            "p1",
		HabitID:       "habit-old",
		UserID:        user.ID,
		Amount:        decimal.NewFromFloat(10.00),
		PenaltyDate:   "2025-12-29",
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}))

	// Wednesday midnight: accrual hour, not settlement day.
	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 0, 30, 0, 0, time.UTC))

	assert.Empty(t, h.payments.Charges)
}

func TestTick_StagedChangesApplyBeforeUserPasses(t *testing.T) {
	h := newHarness(t)
	user := h.seedUser(t, "user-1", "UTC")
	habit := h.seedDailyHabit(t, "habit-1", user.ID)

	newAmount := decimal.NewFromFloat(9.00)
	require.NoError(t, h.store.StageChange(models.StagedHabitChange{
		ID:            "c1",
		HabitID:       habit.ID,
		ChangeType:    models.ChangeEdit,
		PenaltyAmount: &newAmount,
		EffectiveDate: "2025-12-31",
		Timezone:      "UTC",
		CreatedAt:     time.Date(2025, time.December, 30, 12, 0, 0, 0, time.UTC),
	}))

	// Outside the evaluation hour: only the staged pass should act.
	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 12, 30, 0, 0, time.UTC))

	got, err := h.store.GetHabit(habit.ID)
	require.NoError(t, err)
	assert.True(t, got.PenaltyAmount.Equal(newAmount))

	pending, err := h.store.ListPendingStagedChanges()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTick_UserFailureIsolated(t *testing.T) {
	h := newHarness(t)
	// A user with a broken timezone still gets evaluated on UTC and must not
	// stop the healthy user behind them.
	badUser := h.seedUser(t, "user-bad", "Not/AZone")
	goodUser := h.seedUser(t, "user-good", "UTC")
	h.seedDailyHabit(t, "habit-bad", badUser.ID)
	h.seedDailyHabit(t, "habit-good", goodUser.ID)

	h.driver.Tick(context.Background(), time.Date(2025, time.December, 31, 0, 30, 0, 0, time.UTC))

	goodUnpaid, err := h.store.ListUnpaidPenalties(goodUser.ID)
	require.NoError(t, err)
	assert.Len(t, goodUnpaid, 1)

	badUnpaid, err := h.store.ListUnpaidPenalties(badUser.ID)
	require.NoError(t, err)
	assert.Len(t, badUnpaid, 1, "fallback to UTC boundaries, not a crash")
}
