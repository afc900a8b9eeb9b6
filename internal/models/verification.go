package models

import "time"

type VerificationStatus string

const (
	VerificationCompleted VerificationStatus = "completed"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationPending   VerificationStatus = "pending"
)

// HabitVerification is an immutable proof that a habit was satisfied at a
// point in time. Rows are produced by the external verification pipeline and
// are read-only to the accrual engine.
type HabitVerification struct {
	ID         string             `json:"id"`
	HabitID    string             `json:"habit_id"`
	Status     VerificationStatus `json:"status"`
	VerifiedAt time.Time          `json:"verified_at"`
}
