package staged

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/storage"
)

type fakeStore struct {
	habits  map[string]models.Habit
	changes map[string]models.StagedHabitChange
	deleted map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		habits:  make(map[string]models.Habit),
		changes: make(map[string]models.StagedHabitChange),
		deleted: make(map[string]time.Time),
	}
}

func (f *fakeStore) GetHabit(id string) (models.Habit, error) {
	h, ok := f.habits[id]
	if !ok {
		return models.Habit{}, storage.ErrNotFound
	}
	return h, nil
}

func (f *fakeStore) SaveHabit(h models.Habit) error {
	f.habits[h.ID] = h
	return nil
}

func (f *fakeStore) SoftDeleteHabit(id string, at time.Time) error {
	h, ok := f.habits[id]
	if !ok {
		return storage.ErrNotFound
	}
	h.IsActive = false
	f.habits[id] = h
	f.deleted[id] = at
	return nil
}

func (f *fakeStore) StageChange(c models.StagedHabitChange) error {
	f.changes[c.ID] = c
	return nil
}

func (f *fakeStore) ListPendingStagedChanges() ([]models.StagedHabitChange, error) {
	var pending []models.StagedHabitChange
	for _, c := range f.changes {
		if c.AppliedAt == nil {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (f *fakeStore) MarkStagedChangeApplied(id string, at time.Time) error {
	c, ok := f.changes[id]
	if !ok || c.AppliedAt != nil {
		return storage.ErrNotFound
	}
	c.AppliedAt = &at
	f.changes[id] = c
	return nil
}

func (f *fakeStore) pendingCount() int {
	n := 0
	for _, c := range f.changes {
		if c.AppliedAt == nil {
			n++
		}
	}
	return n
}

func newTestApplier(store *fakeStore) *Applier {
	return NewApplier(store, log.New(io.Discard))
}

func seedHabit(store *fakeStore) models.Habit {
	h := models.Habit{
		ID:            "habit-1",
		OwnerID:       "user-1",
		Name:          "read",
		ScheduleType:  models.ScheduleDaily,
		Weekdays:      []int{1, 2, 3, 4, 5},
		PenaltyAmount: decimal.NewFromFloat(5.00),
		IsActive:      true,
	}
	store.habits[h.ID] = h
	return h
}

func TestStageEdit_EffectiveTomorrowInOwnerZone(t *testing.T) {
	store := newFakeStore()
	applier := newTestApplier(store)

	// 23:30 in New York on Dec 30: tomorrow there is Dec 31, even though
	// it is already Dec 31 in UTC.
	now := time.Date(2025, time.December, 31, 4, 30, 0, 0, time.UTC)
	name := "read more"
	require.NoError(t, applier.StageEdit(models.StagedHabitChange{
		HabitID: "habit-1",
		Name:    &name,
	}, "America/New_York", now))

	require.Len(t, store.changes, 1)
	for _, c := range store.changes {
		assert.Equal(t, "2025-12-31", c.EffectiveDate)
		assert.Equal(t, "America/New_York", c.Timezone)
		assert.Equal(t, models.ChangeEdit, c.ChangeType)
	}
}

func TestApplyDue_NotBeforeEffectiveDate(t *testing.T) {
	store := newFakeStore()
	habit := seedHabit(store)
	applier := newTestApplier(store)

	newAmount := decimal.NewFromFloat(9.00)
	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: habit.ID, ChangeType: models.ChangeEdit,
		PenaltyAmount: &newAmount,
		EffectiveDate: "2025-12-31", Timezone: "UTC",
	}

	stillToday := time.Date(2025, time.December, 30, 23, 0, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), stillToday))

	assert.Equal(t, 1, store.pendingCount(), "change stays pending until its day")
	assert.True(t, store.habits[habit.ID].PenaltyAmount.Equal(decimal.NewFromFloat(5.00)))
}

func TestApplyDue_AppliesOnEffectiveDate(t *testing.T) {
	store := newFakeStore()
	habit := seedHabit(store)
	applier := newTestApplier(store)

	newAmount := decimal.NewFromFloat(9.00)
	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: habit.ID, ChangeType: models.ChangeEdit,
		PenaltyAmount: &newAmount,
		EffectiveDate: "2025-12-31", Timezone: "UTC",
	}

	onTheDay := time.Date(2025, time.December, 31, 0, 5, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), onTheDay))

	assert.Equal(t, 0, store.pendingCount())
	got := store.habits[habit.ID]
	assert.True(t, got.PenaltyAmount.Equal(newAmount))
	assert.Equal(t, "read", got.Name, "unset fields keep their current value")
}

func TestApplyDue_HonorsStagedTimezone(t *testing.T) {
	store := newFakeStore()
	habit := seedHabit(store)
	applier := newTestApplier(store)

	name := "renamed"
	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: habit.ID, ChangeType: models.ChangeEdit,
		Name:          &name,
		EffectiveDate: "2025-12-31", Timezone: "Asia/Tokyo",
	}

	// Dec 30 16:00 UTC is already Dec 31 in Tokyo.
	now := time.Date(2025, time.December, 30, 16, 0, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), now))

	assert.Equal(t, "renamed", store.habits[habit.ID].Name)
}

func TestApplyDue_DeleteSoftDeletes(t *testing.T) {
	store := newFakeStore()
	habit := seedHabit(store)
	applier := newTestApplier(store)

	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: habit.ID, ChangeType: models.ChangeDelete,
		EffectiveDate: "2025-12-31", Timezone: "UTC",
	}

	now := time.Date(2025, time.December, 31, 0, 5, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), now))

	assert.False(t, store.habits[habit.ID].IsActive)
	_, wasDeleted := store.deleted[habit.ID]
	assert.True(t, wasDeleted)
	assert.Equal(t, 0, store.pendingCount())
}

func TestApplyDue_MissingHabitStaysPending(t *testing.T) {
	store := newFakeStore()
	applier := newTestApplier(store)

	name := "ghost"
	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: "no-such-habit", ChangeType: models.ChangeEdit,
		Name:          &name,
		EffectiveDate: "2025-12-31", Timezone: "UTC",
	}

	now := time.Date(2025, time.December, 31, 0, 5, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), now), "one bad change must not fail the pass")
	assert.Equal(t, 1, store.pendingCount())
}

func TestApplyDue_ScheduleSwitchNormalizes(t *testing.T) {
	store := newFakeStore()
	habit := seedHabit(store)
	applier := newTestApplier(store)

	weekly := models.ScheduleWeekly
	store.changes["c1"] = models.StagedHabitChange{
		ID: "c1", HabitID: habit.ID, ChangeType: models.ChangeEdit,
		ScheduleType:  &weekly,
		EffectiveDate: "2025-12-31", Timezone: "UTC",
	}

	now := time.Date(2025, time.December, 31, 0, 5, 0, 0, time.UTC)
	require.NoError(t, applier.ApplyDue(context.Background(), now))

	got := store.habits[habit.ID]
	assert.Equal(t, models.ScheduleWeekly, got.ScheduleType)
	assert.Nil(t, got.Weekdays, "weekly habits carry no weekday set")
	require.NotNil(t, got.WeeklyTarget)
	assert.Equal(t, 1, *got.WeeklyTarget, "target defaults when the edit omits it")
}

func TestNormalize_DailyDefaults(t *testing.T) {
	target := 3
	h := normalize(models.Habit{
		ScheduleType: models.ScheduleDaily,
		WeeklyTarget: &target,
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, h.Weekdays)
	assert.Nil(t, h.WeeklyTarget)
}

func TestNormalize_WeeklyClampsWeekStart(t *testing.T) {
	target := 3
	h := normalize(models.Habit{
		ScheduleType: models.ScheduleWeekly,
		WeeklyTarget: &target,
		WeekStartDay: 9,
	})
	assert.Equal(t, 0, h.WeekStartDay)
}
