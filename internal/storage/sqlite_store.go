package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/anteuphq/anteup/internal/migration"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/migrations"
)

type SQLiteStore struct {
	path string
	db   *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{
		path: path,
	}
}

func (s *SQLiteStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// Single-writer access; busy_timeout lets the webhook listener and the
	// driver loop share the file without immediate SQLITE_BUSY failures.
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
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

func (s *SQLiteStore) Load() error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'anteup init' first")
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	runner, err := s.MigrationRunner()
	if err != nil {
		return err
	}
	return runner.ValidateVersion()
}

// MigrationRunner returns a runner over the sqlite migration dialect.
func (s *SQLiteStore) MigrationRunner() (*migration.Runner, error) {
	sub, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	return migration.NewRunner(s.db, sub), nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) GetDBPath() string {
	return s.path
}

func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339, v)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func parseAmount(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored amount %q: %w", v, err)
	}
	return d, nil
}

// --- users ---

const userColumns = `id, timezone, stripe_customer_id, payment_method_id, connect_account_id, payment_method_updated_at, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var pmUpdatedAt sql.NullString
	var createdAt string

	if err := row.Scan(&u.ID, &u.Timezone, &u.StripeCustomerID, &u.PaymentMethodID,
		&u.ConnectAccountID, &pmUpdatedAt, &createdAt); err != nil {
		return models.User{}, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return models.User{}, err
	}
	u.CreatedAt = t

	if pmUpdatedAt.Valid {
		t, err := parseTime(pmUpdatedAt.String)
		if err != nil {
			return models.User{}, err
		}
		u.PaymentMethodUpdatedAt = &t
	}

	return u, nil
}

func (s *SQLiteStore) GetUser(id string) (models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
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

func (s *SQLiteStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO users (
			id, timezone, stripe_customer_id, payment_method_id, connect_account_id,
			payment_method_updated_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Timezone, u.StripeCustomerID, u.PaymentMethodID, u.ConnectAccountID,
		nullTime(u.PaymentMethodUpdatedAt), formatTime(u.CreatedAt),
	)
	return err
}

// --- habits ---

const habitColumns = `id, owner_id, recipient_id, name, schedule_type, weekdays, weekly_target, week_start_day, penalty_amount, streak, is_active, created_at, deleted_at`

func scanHabit(row rowScanner) (models.Habit, error) {
	var h models.Habit
	var recipientID, deletedAt sql.NullString
	var weeklyTarget sql.NullInt64
	var weekdaysJSON, amount, createdAt string

	if err := row.Scan(&h.ID, &h.OwnerID, &recipientID, &h.Name, &h.ScheduleType,
		&weekdaysJSON, &weeklyTarget, &h.WeekStartDay, &amount, &h.Streak,
		&h.IsActive, &createdAt, &deletedAt); err != nil {
		return models.Habit{}, err
	}

	if recipientID.Valid {
		h.RecipientID = &recipientID.String
	}
	if weeklyTarget.Valid {
		target := int(weeklyTarget.Int64)
		h.WeeklyTarget = &target
	}
	if weekdaysJSON != "" {
		if err := json.Unmarshal([]byte(weekdaysJSON), &h.Weekdays); err != nil {
			return models.Habit{}, fmt.Errorf("invalid stored weekdays %q: %w", weekdaysJSON, err)
		}
	}

	d, err := parseAmount(amount)
	if err != nil {
		return models.Habit{}, err
	}
	h.PenaltyAmount = d

	t, err := parseTime(createdAt)
	if err != nil {
		return models.Habit{}, err
	}
	h.CreatedAt = t

	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return models.Habit{}, err
		}
		h.DeletedAt = &t
	}

	return h, nil
}

func (s *SQLiteStore) GetHabit(id string) (models.Habit, error) {
	row := s.db.QueryRow(`SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}

func (s *SQLiteStore) listHabits(query string, args ...any) ([]models.Habit, error) {
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

func (s *SQLiteStore) ListActiveHabits() ([]models.Habit, error) {
	return s.listHabits(`SELECT ` + habitColumns + ` FROM habits WHERE is_active = 1 AND deleted_at IS NULL`)
}

func (s *SQLiteStore) ListActiveHabitsByOwner(ownerID string) ([]models.Habit, error) {
	return s.listHabits(`SELECT `+habitColumns+` FROM habits WHERE owner_id = ? AND is_active = 1 AND deleted_at IS NULL`, ownerID)
}

func (s *SQLiteStore) SaveHabit(h models.Habit) error {
	weekdaysJSON, err := json.Marshal(h.Weekdays)
	if err != nil {
		return fmt.Errorf("failed to marshal weekdays: %w", err)
	}

	var weeklyTarget sql.NullInt64
	if h.WeeklyTarget != nil {
		weeklyTarget = sql.NullInt64{Int64: int64(*h.WeeklyTarget), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO habits (
			id, owner_id, recipient_id, name, schedule_type, weekdays, weekly_target,
			week_start_day, penalty_amount, streak, is_active, created_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.OwnerID, nullStr(h.RecipientID), h.Name, h.ScheduleType, string(weekdaysJSON),
		weeklyTarget, h.WeekStartDay, h.PenaltyAmount.String(), h.Streak, h.IsActive,
		formatTime(h.CreatedAt), nullTime(h.DeletedAt),
	)
	return err
}

// SoftDeleteHabit deactivates a habit and stamps deleted_at. The row is never
// removed so penalty and analytics references stay valid.
func (s *SQLiteStore) SoftDeleteHabit(id string, at time.Time) error {
	var deletedAt sql.NullString
	err := s.db.QueryRow("SELECT deleted_at FROM habits WHERE id = ?", id).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("habit %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to check habit existence: %w", err)
	}

	if deletedAt.Valid {
		return fmt.Errorf("habit %s is already deleted", id)
	}

	_, err = s.db.Exec("UPDATE habits SET is_active = 0, deleted_at = ? WHERE id = ?", formatTime(at), id)
	return err
}

// --- verifications ---

func (s *SQLiteStore) InsertVerification(v models.HabitVerification) error {
	_, err := s.db.Exec(`
		INSERT INTO habit_verifications (id, habit_id, status, verified_at)
		VALUES (?, ?, ?, ?)`,
		v.ID, v.HabitID, v.Status, formatTime(v.VerifiedAt),
	)
	return err
}

func (s *SQLiteStore) CountCompletedVerifications(habitID string, start, end time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM habit_verifications
		WHERE habit_id = ? AND status = ? AND verified_at >= ? AND verified_at < ?`,
		habitID, models.VerificationCompleted, formatTime(start), formatTime(end),
	).Scan(&count)
	return count, err
}

// --- weekly progress ---

func (s *SQLiteStore) GetWeeklyProgress(habitID, weekStartDate string) (models.WeeklyHabitProgress, error) {
	row := s.db.QueryRow(`
		SELECT id, habit_id, week_start_date, current_completions, target_completions, is_week_complete
		FROM weekly_habit_progress WHERE habit_id = ? AND week_start_date = ?`,
		habitID, weekStartDate)

	var p models.WeeklyHabitProgress
	err := row.Scan(&p.ID, &p.HabitID, &p.WeekStartDate, &p.CurrentCompletions,
		&p.TargetCompletions, &p.IsWeekComplete)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeeklyHabitProgress{}, fmt.Errorf("progress for habit %s week %s: %w", habitID, weekStartDate, ErrNotFound)
	}
	return p, err
}

func (s *SQLiteStore) SaveWeeklyProgress(p models.WeeklyHabitProgress) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO weekly_habit_progress (
			id, habit_id, week_start_date, current_completions, target_completions, is_week_complete
		) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.HabitID, p.WeekStartDate, p.CurrentCompletions, p.TargetCompletions, p.IsWeekComplete,
	)
	return err
}

// --- penalties ---

const penaltyColumns = `id, habit_id, user_id, recipient_id, amount, penalty_date, is_paid, payment_status, charge_id, transfer_id, fee_rate, created_at, updated_at`

func scanPenalty(row rowScanner) (models.Penalty, error) {
	var p models.Penalty
	var recipientID, feeRate sql.NullString
	var amount, createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.HabitID, &p.UserID, &recipientID, &amount,
		&p.PenaltyDate, &p.IsPaid, &p.PaymentStatus, &p.ChargeID, &p.TransferID,
		&feeRate, &createdAt, &updatedAt); err != nil {
		return models.Penalty{}, err
	}

	if recipientID.Valid {
		p.RecipientID = &recipientID.String
	}

	d, err := parseAmount(amount)
	if err != nil {
		return models.Penalty{}, err
	}
	p.Amount = d

	if feeRate.Valid {
		rate, err := parseAmount(feeRate.String)
		if err != nil {
			return models.Penalty{}, err
		}
		p.FeeRate = &rate
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return models.Penalty{}, err
	}
	p.CreatedAt = t

	t, err = parseTime(updatedAt)
	if err != nil {
		return models.Penalty{}, err
	}
	p.UpdatedAt = t

	return p, nil
}

// InsertPenalty is create-if-absent: the UNIQUE(habit_id, penalty_date)
// constraint makes re-evaluation of an already-evaluated day a no-op, and a
// losing insert reports ErrConflict so callers can tell the difference.
func (s *SQLiteStore) InsertPenalty(p models.Penalty) error {
	var feeRate sql.NullString
	if p.FeeRate != nil {
		feeRate = sql.NullString{String: p.FeeRate.String(), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO penalties (
			id, habit_id, user_id, recipient_id, amount, penalty_date, is_paid,
			payment_status, charge_id, transfer_id, fee_rate, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteStore) listPenalties(query string, args ...any) ([]models.Penalty, error) {
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

func (s *SQLiteStore) ListUnpaidPenalties(userID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE user_id = ? AND is_paid = 0 ORDER BY penalty_date`, userID)
}

func (s *SQLiteStore) ListPenaltiesByCharge(chargeID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE charge_id = ? ORDER BY penalty_date`, chargeID)
}

// ListTransferablePenalties returns charged penalties whose recipient share
// has not been forwarded yet, including shares deferred by a prior settlement
// for being under the transfer minimum.
func (s *SQLiteStore) ListTransferablePenalties(userID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE user_id = ? AND is_paid = 1 AND payment_status = ?
		AND recipient_id IS NOT NULL AND transfer_id = '' ORDER BY penalty_date`,
		userID, models.PaymentSucceeded)
}

func (s *SQLiteStore) ListRecipientPenalties(recipientID string) ([]models.Penalty, error) {
	return s.listPenalties(`SELECT `+penaltyColumns+` FROM penalties
		WHERE recipient_id = ? ORDER BY penalty_date`, recipientID)
}

// UpdatePenaltySettlement rewrites only the settlement metadata. Amount,
// habit, payer, recipient and date are immutable after creation.
func (s *SQLiteStore) UpdatePenaltySettlement(p models.Penalty) error {
	var feeRate sql.NullString
	if p.FeeRate != nil {
		feeRate = sql.NullString{String: p.FeeRate.String(), Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE penalties SET is_paid = ?, payment_status = ?, charge_id = ?,
			transfer_id = ?, fee_rate = ?, updated_at = ?
		WHERE id = ?`,
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

func (s *SQLiteStore) StageChange(c models.StagedHabitChange) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.HabitID, c.ChangeType, nullStr(c.Name), scheduleType, weekdaysJSON,
		weeklyTarget, weekStartDay, amount, nullStr(c.RecipientID), c.EffectiveDate,
		c.Timezone, nullTime(c.AppliedAt), formatTime(c.CreatedAt),
	)
	return err
}

func scanStagedChange(row rowScanner) (models.StagedHabitChange, error) {
	var c models.StagedHabitChange
	var name, scheduleType, weekdaysJSON, amount, recipientID sql.NullString
	var weeklyTarget, weekStartDay sql.NullInt64
	var createdAt string

	if err := row.Scan(&c.ID, &c.HabitID, &c.ChangeType, &name, &scheduleType,
		&weekdaysJSON, &weeklyTarget, &weekStartDay, &amount, &recipientID,
		&c.EffectiveDate, &c.Timezone, &createdAt); err != nil {
		return models.StagedHabitChange{}, err
	}

	if name.Valid {
		c.Name = &name.String
	}
	if scheduleType.Valid {
		st := models.ScheduleType(scheduleType.String)
		c.ScheduleType = &st
	}
	if weekdaysJSON.Valid && weekdaysJSON.String != "" {
		if err := json.Unmarshal([]byte(weekdaysJSON.String), &c.Weekdays); err != nil {
			return models.StagedHabitChange{}, fmt.Errorf("invalid stored weekdays %q: %w", weekdaysJSON.String, err)
		}
	}
	if weeklyTarget.Valid {
		target := int(weeklyTarget.Int64)
		c.WeeklyTarget = &target
	}
	if weekStartDay.Valid {
		day := int(weekStartDay.Int64)
		c.WeekStartDay = &day
	}
	if amount.Valid {
		d, err := parseAmount(amount.String)
		if err != nil {
			return models.StagedHabitChange{}, err
		}
		c.PenaltyAmount = &d
	}
	if recipientID.Valid {
		c.RecipientID = &recipientID.String
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return models.StagedHabitChange{}, err
	}
	c.CreatedAt = t

	return c, nil
}

func (s *SQLiteStore) ListPendingStagedChanges() ([]models.StagedHabitChange, error) {
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

func (s *SQLiteStore) MarkStagedChangeApplied(id string, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE staged_habit_changes SET applied_at = ? WHERE id = ? AND applied_at IS NULL",
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
