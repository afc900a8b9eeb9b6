package storage

import (
	"time"

	"github.com/anteuphq/anteup/internal/models"
)

// Provider is the full storage surface. Engine packages declare their own
// narrow subsets of it so their logic never depends on the concrete store.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Users
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	SaveUser(models.User) error

	// Habits
	GetHabit(id string) (models.Habit, error)
	ListActiveHabits() ([]models.Habit, error)
	ListActiveHabitsByOwner(ownerID string) ([]models.Habit, error)
	SaveHabit(models.Habit) error
	SoftDeleteHabit(id string, at time.Time) error

	// Verifications
	InsertVerification(models.HabitVerification) error
	CountCompletedVerifications(habitID string, start, end time.Time) (int, error)

	// Weekly progress
	GetWeeklyProgress(habitID, weekStartDate string) (models.WeeklyHabitProgress, error)
	SaveWeeklyProgress(models.WeeklyHabitProgress) error

	// Penalties
	InsertPenalty(models.Penalty) error
	ListUnpaidPenalties(userID string) ([]models.Penalty, error)
	ListPenaltiesByCharge(chargeID string) ([]models.Penalty, error)
	ListTransferablePenalties(userID string) ([]models.Penalty, error)
	ListRecipientPenalties(recipientID string) ([]models.Penalty, error)
	UpdatePenaltySettlement(models.Penalty) error

	// Staged changes
	StageChange(models.StagedHabitChange) error
	ListPendingStagedChanges() ([]models.StagedHabitChange, error)
	MarkStagedChangeApplied(id string, at time.Time) error

	// Utils
	GetDBPath() string
}
