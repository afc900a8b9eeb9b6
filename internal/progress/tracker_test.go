package progress

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/storage"
	"github.com/anteuphq/anteup/internal/verification"
)

type fakeProgressStore struct {
	rows map[string]models.WeeklyHabitProgress
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{rows: make(map[string]models.WeeklyHabitProgress)}
}

func (f *fakeProgressStore) GetWeeklyProgress(habitID, weekStartDate string) (models.WeeklyHabitProgress, error) {
	row, ok := f.rows[habitID+"|"+weekStartDate]
	if !ok {
		return models.WeeklyHabitProgress{}, storage.ErrNotFound
	}
	return row, nil
}

func (f *fakeProgressStore) SaveWeeklyProgress(p models.WeeklyHabitProgress) error {
	f.rows[p.HabitID+"|"+p.WeekStartDate] = p
	return nil
}

type fakeVerificationStore struct {
	times map[string][]time.Time
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{times: make(map[string][]time.Time)}
}

func (f *fakeVerificationStore) add(habitID string, at time.Time) {
	f.times[habitID] = append(f.times[habitID], at)
}

func (f *fakeVerificationStore) CountCompletedVerifications(habitID string, start, end time.Time) (int, error) {
	count := 0
	for _, at := range f.times[habitID] {
		if !at.Before(start) && at.Before(end) {
			count++
		}
	}
	return count, nil
}

func weeklyHabit(target int, created time.Time) models.Habit {
	return models.Habit{
		ID:            "habit-1",
		OwnerID:       "user-1",
		ScheduleType:  models.ScheduleWeekly,
		WeeklyTarget:  &target,
		WeekStartDay:  0, // Sunday
		PenaltyAmount: decimal.NewFromFloat(5.00),
		IsActive:      true,
		CreatedAt:     created,
	}
}

func TestRecordVerification_CreatesRowAndIncrements(t *testing.T) {
	store := newFakeProgressStore()
	verifs := newFakeVerificationStore()
	tracker := NewTracker(store, verification.NewReader(verifs))

	// Created long before this week: full target applies.
	habit := weeklyHabit(3, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))

	at := time.Date(2025, time.December, 30, 9, 0, 0, 0, time.UTC) // Tuesday
	verifs.add(habit.ID, at)

	require.NoError(t, tracker.RecordVerification(habit, at, time.UTC))

	row, err := store.GetWeeklyProgress(habit.ID, "2025-12-28")
	require.NoError(t, err)
	assert.Equal(t, 1, row.CurrentCompletions)
	assert.Equal(t, 3, row.TargetCompletions)
	assert.False(t, row.IsWeekComplete)
}

func TestRecordVerification_SecondSameDaySkipped(t *testing.T) {
	store := newFakeProgressStore()
	verifs := newFakeVerificationStore()
	tracker := NewTracker(store, verification.NewReader(verifs))

	habit := weeklyHabit(3, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))

	first := time.Date(2025, time.December, 30, 9, 0, 0, 0, time.UTC)
	second := time.Date(2025, time.December, 30, 18, 0, 0, 0, time.UTC)

	verifs.add(habit.ID, first)
	require.NoError(t, tracker.RecordVerification(habit, first, time.UTC))

	verifs.add(habit.ID, second)
	require.NoError(t, tracker.RecordVerification(habit, second, time.UTC))

	row, err := store.GetWeeklyProgress(habit.ID, "2025-12-28")
	require.NoError(t, err)
	assert.Equal(t, 1, row.CurrentCompletions, "only one completion per local day counts")
}

func TestRecordVerification_SeparateDaysCount(t *testing.T) {
	store := newFakeProgressStore()
	verifs := newFakeVerificationStore()
	tracker := NewTracker(store, verification.NewReader(verifs))

	habit := weeklyHabit(2, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))

	for _, day := range []int{29, 30} {
		at := time.Date(2025, time.December, day, 9, 0, 0, 0, time.UTC)
		verifs.add(habit.ID, at)
		require.NoError(t, tracker.RecordVerification(habit, at, time.UTC))
	}

	row, err := store.GetWeeklyProgress(habit.ID, "2025-12-28")
	require.NoError(t, err)
	assert.Equal(t, 2, row.CurrentCompletions)
	assert.True(t, row.IsWeekComplete)
}

func TestRecordVerification_IgnoresDailyHabits(t *testing.T) {
	store := newFakeProgressStore()
	verifs := newFakeVerificationStore()
	tracker := NewTracker(store, verification.NewReader(verifs))

	habit := models.Habit{ID: "habit-1", ScheduleType: models.ScheduleDaily}
	at := time.Date(2025, time.December, 30, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordVerification(habit, at, time.UTC))
	assert.Empty(t, store.rows, "daily habits have no weekly counter")
}

func TestTargetForWeek_FirstWeekProrated(t *testing.T) {
	// Created Thursday Dec 4, Sunday-start week of Nov 30: 3 days remain.
	habit := weeklyHabit(7, time.Date(2025, time.December, 4, 15, 0, 0, 0, time.UTC))

	weekStart := time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, TargetForWeek(habit, weekStart))

	// Any later week gets the full target.
	nextWeek := weekStart.AddDate(0, 0, 7)
	assert.Equal(t, 7, TargetForWeek(habit, nextWeek))
}
