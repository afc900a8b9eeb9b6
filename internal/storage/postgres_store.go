package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/anteuphq/anteup/internal/migration"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/migrations"
)

// PostgresStore implements Provider against a shared PostgreSQL database,
// for deployments where the engine does not own its host. The sqlite store
// remains the default for single-machine installs.
type PostgresStore struct {
	connStr string
	db      *sql.DB
}

func NewPostgresStore(connStr string) *PostgresStore {
	return &PostgresStore{connStr: connStr}
}

func (s *PostgresStore) open() error {
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Bound the pool so a burst of concurrent user jobs cannot exhaust the
	// server's connection slots.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db
	return nil
}

func (s *PostgresStore) Init() error {
	if err := s.open(); err != nil {
		return err
	}

	runner, err := s.MigrationRunner()
	if err != nil {
		return err
	}
	if _, err := runner.ApplyMigrations(nil); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load() error {
	if s.db != nil {
		return nil
	}
	if err := s.open(); err != nil {
		return err
	}

	runner, err := s.MigrationRunner()
	if err != nil {
		return err
	}
	return runner.ValidateVersion()
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetDBPath returns the connection string with any embedded password masked,
// so it is safe to print in diagnostics.
func (s *PostgresStore) GetDBPath() string {
	u, err := url.Parse(s.connStr)
	if err != nil || u.User == nil {
		return s.connStr
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func (s *PostgresStore) GetDB() *sql.DB {
	return s.db
}

// MigrationRunner returns a runner over the postgres migration dialect.
func (s *PostgresStore) MigrationRunner() (*migration.Runner, error) {
	sub, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	return migration.NewRunner(s.db, sub), nil
}

// --- users ---

func (s *PostgresStore) GetUser(id string) (models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (
			id, timezone, stripe_customer_id, payment_method_id, connect_account_id,
			payment_method_updated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			payment_method_id = EXCLUDED.payment_method_id,
			connect_account_id = EXCLUDED.connect_account_id,
			payment_method_updated_at = EXCLUDED.payment_method_updated_at,
			created_at = EXCLUDED.created_at`,
		u.ID, u.Timezone, u.StripeCustomerID, u.PaymentMethodID, u.ConnectAccountID,
		nullTime(u.PaymentMethodUpdatedAt), formatTime(u.CreatedAt),
	)
	return err
}

// --- habits ---

func (s *PostgresStore) GetHabit(id string) (models.Habit, error) {
	row := s.db.QueryRow(`SELECT `+habitColumns+` FROM habits WHERE id = $1`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}

func (s *PostgresStore) listHabits(query string, args ...any) ([]models.Habit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (s *PostgresStore) ListActiveHabits() ([]models.Habit, error) {
	return s.listHabits(`SELECT ` + habitColumns + ` FROM habits WHERE is_active AND deleted_at IS NULL`)
}

func (s *PostgresStore) ListActiveHabitsByOwner(ownerID string) ([]models.Habit, error) {
	return s.listHabits(`SELECT `+habitColumns+` FROM habits WHERE owner_id = $1 AND is_active AND deleted_at IS NULL`, ownerID)
}

func (s *PostgresStore) SaveHabit(h models.Habit) error {
	weekdaysJSON, err := json.Marshal(h.Weekdays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekdays: %w", err)
	}

	var weeklyTarget sql.NullInt64
	if h.WeeklyTarget != nil {
		weeklyTarget = sql.NullInt64{Int64: int64(*h.WeeklyTarget), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO habits (
			id, owner_id, recipient_id, name, schedule_type, weekdays, weekly_target,
			week_start_day, penalty_amount, streak, is_active, created_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			recipient_id = EXCLUDED.recipient_id,
			name = EXCLUDED.name,
			schedule_type = EXCLUDED.schedule_type,
			weekdays = EXCLUDED.weekdays,
			weekly_target = EXCLUDED.weekly_target,
			week_start_day = EXCLUDED.week_start_day,
			penalty_amount = EXCLUDED.penalty_amount,
			streak = EXCLUDED.streak,
			is_active = EXCLUDED.is_active,
			created_at = EXCLUDED.created_at,
			deleted_at = EXCLUDED.deleted_at`,
		h.ID, h.OwnerID, nullStr(h.RecipientID), h.Name, h.ScheduleType, string(weekdaysJSON),
		weeklyTarget, h.WeekStartDay, h.PenaltyAmount.String(), h.Streak, h.IsActive,
		formatTime(h.CreatedAt), nullTime(h.DeletedAt),
	)
	return err
}

func (s *PostgresStore) SoftDeleteHabit(id string, at time.Time) error {
	var deletedAt sql.NullString
	err := s.db.QueryRow("SELECT deleted_at FROM habits WHERE id = $1", id).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("habit %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to check habit existence: %w", err)
	}

	if deletedAt.Valid {
		return fmt.Errorf("habit %s is already deleted", id)
	}

	_, err = s.db.Exec("UPDATE habits SET is_active = FALSE, deleted_at = $1 WHERE id = $2", formatTime(at), id)
	return err
}

// --- verifications ---

func (s *PostgresStore) InsertVerification(v models.HabitVerification) error {
	_, err := s.db.Exec(`
		INSERT INTO habit_verifications (id, habit_id, status, verified_at)
		VALUES ($1, $2, $3, $4)`,
		v.ID, v.HabitID, v.Status, formatTime(v.VerifiedAt),
	)
	return err
}

func (s *PostgresStore) CountCompletedVerifications(habitID string, start, end time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM habit_verifications
		WHERE habit_id = $1 AND status = $2 AND verified_at >= $3 AND verified_at < $4`,
		habitID, models.VerificationCompleted, formatTime(start), formatTime(end),
	).Scan(&count)
	return count, err
}

// --- weekly progress ---

func (s *PostgresStore) GetWeeklyProgress(habitID, weekStartDate string) (models.WeeklyHabitProgress, error) {
	row := s.db.QueryRow(`
		SELECT id, habit_id, week_start_date, current_completions, target_completions, is_week_complete
		FROM weekly_habit_progress WHERE habit_id = $1 AND week_start_date = $2`,
		habitID, weekStartDate)

	var p models.WeeklyHabitProgress
	err := row.Scan(&p.ID, &p.HabitID, &p.WeekStartDate, &p.CurrentCompletions,
		&p.TargetCompletions, &p.IsWeekComplete)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeeklyHabitProgress{}, fmt.Errorf("progress for habit %s week %s: %w", habitID, weekStartDate, ErrNotFound)
	}
	return p, err
}

func (s *PostgresStore) SaveWeeklyProgress(p models.WeeklyHabitProgress) error {
	_, err := s.db.Exec(`
		INSERT INTO weekly_habit_progress (
			id, habit_id, week_start_date, current_completions, target_completions, is_week_complete
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (habit_id, week_start_date) DO UPDATE SET
			current_completions = EXCLUDED.current_completions,
			target_completions = EXCLUDED.target_completions,
			is_week_complete = EXCLUDED.is_week_complete`,
		p.ID, p.HabitID, p.WeekStartDate, p.CurrentCompletions, p.TargetCompletions, p.IsWeekComplete,
	)
	return err
}

// --- penalties ---

// InsertPenalty is create-if-absent, same contract as the sqlite store: the
// UNIQUE(habit_id, penalty_date) constraint absorbs re-evaluation and a
// losing insert reports ErrConflict.
func (s *PostgresStore) InsertPenalty(p models.Penalty) error {
	var feeRate sql.NullString
	if p.FeeRate != nil {
		feeRate = sql.NullString{String: p.FeeRate.String(), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO penalties (
			id, habit_id, user_id, recipient_id, amount, penalty_date, is_paid,
			payment_status, charge_id, transfer_id, fee_rate, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (habit_id, penalty_date) DO NOTHING`,
		p.ID, p.HabitID, p.UserID, nullStr(p.RecipientID), p.Amount.String(), p.PenaltyDate,
		p.IsPaid, p.PaymentStatus, p.ChargeID, p.TransferID, feeRate,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("penalty for habit %s on %s: %w", p.HabitID, p.PenaltyDate, ErrConflict)
	}
	return nil
}

func (s *PostgresStore) listPenalties(query string, args ...any) ([]models.Penalty, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var penalties []models.Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}

func (s *PostgresStore) ListUnpaidPenalties(userID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE user_id = $1 AND NOT is_paid ORDER BY penalty_date`, userID)
}

func (s *PostgresStore) ListPenaltiesByCharge(chargeID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE charge_id = $1 ORDER BY penalty_date`, chargeID)
}

func (s *PostgresStore) ListTransferablePenalties(userID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE user_id = $1 AND is_paid AND payment_status = $2
		AND recipient_id IS NOT NULL AND transfer_id = '' ORDER BY penalty_date`,
		userID, models.PaymentSucceeded)
}

func (s *PostgresStore) ListRecipientPenalties(recipientID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE recipient_id = $1 ORDER BY penalty_date`, recipientID)
}

func (s *PostgresStore) UpdatePenaltySettlement(p models.Penalty) error {
	var feeRate sql.NullString
	if p.FeeRate != nil {
		feeRate = sql.NullString{String: p.FeeRate.String(), Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE penalties SET is_paid = $1, payment_status = $2, charge_id = $3,
			transfer_id = $4, fee_rate = $5, updated_at = $6
		WHERE id = $7`,
		p.IsPaid, p.PaymentStatus, p.ChargeID, p.TransferID, feeRate,
		formatTime(time.Now()), p.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("penalty %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// --- staged changes ---

func (s *PostgresStore) StageChange(c models.StagedHabitChange) error {
	var weekdaysJSON sql.NullString
	if c.Weekdays != nil {
		b, err := json.Marshal(c.Weekdays)
		if err != nil {
			return fmt.Errorf("failed to marshal weekdays: %w", err)
		}
		weekdaysJSON = sql.NullString{String: string(b), Valid: true}
	}

	var scheduleType sql.NullString
	if c.ScheduleType != nil {
		scheduleType = sql.NullString{String: string(*c.ScheduleType), Valid: true}
	}

	var weeklyTarget, weekStartDay sql.NullInt64
	if c.WeeklyTarget != nil {
		weeklyTarget = sql.NullInt64{Int64: int64(*c.WeeklyTarget), Valid: true}
	}
	if c.WeekStartDay != nil {
		weekStartDay = sql.NullInt64{Int64: int64(*c.WeekStartDay), Valid: true}
	}

	var amount sql.NullString
	if c.PenaltyAmount != nil {
		amount = sql.NullString{String: c.PenaltyAmount.String(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO staged_habit_changes (
			id, habit_id, change_type, name, schedule_type, weekdays, weekly_target,
			week_start_day, penalty_amount, recipient_id, effective_date, timezone,
			applied_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.HabitID, c.ChangeType, nullStr(c.Name), scheduleType, weekdaysJSON,
		weeklyTarget, weekStartDay, amount, nullStr(c.RecipientID), c.EffectiveDate,
		c.Timezone, nullTime(c.AppliedAt), formatTime(c.CreatedAt),
	)
	return err
}

func (s *PostgresStore) ListPendingStagedChanges() ([]models.StagedHabitChange, error) {
	rows, err := s.db.Query(`
		SELECT id, habit_id, change_type, name, schedule_type, weekdays, weekly_target,
			week_start_day, penalty_amount, recipient_id, effective_date, timezone, created_at
		FROM staged_habit_changes WHERE applied_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []models.StagedHabitChange
	for rows.Next() {
		c, err := scanStagedChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *PostgresStore) MarkStagedChangeApplied(id string, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE staged_habit_changes SET applied_at = $1 WHERE id = $2 AND applied_at IS NULL",
		formatTime(at), id,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("staged change %s: %w", id, ErrNotFound)
	}
	return nil
}
