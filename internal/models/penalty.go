package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentProcessing     PaymentStatus = "processing"
	PaymentSucceeded      PaymentStatus = "succeeded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentCanceled       PaymentStatus = "canceled"
	PaymentRequiresAction PaymentStatus = "requires_action"
)

// Penalty is the financial ledger entry for a missed habit occurrence.
// Amount is fixed at creation; settlement only mutates the payment fields.
// PenaltyDate is the missed local day (daily habits) or the week start date
// (weekly habits), formatted YYYY-MM-DD in the owner's timezone.
type Penalty struct {
	ID            string           `json:"id"`
	HabitID       string           `json:"habit_id"`
	UserID        string           `json:"user_id"`
	RecipientID   *string          `json:"recipient_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	PenaltyDate   string           `json:"penalty_date"`
	IsPaid        bool             `json:"is_paid"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	ChargeID      string           `json:"charge_id,omitempty"`
	TransferID    string           `json:"transfer_id,omitempty"`
	FeeRate       *decimal.Decimal `json:"fee_rate,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
