// Package payments is the boundary to the payment processor. Engines depend
// only on the Client interface; the Stripe implementation lives behind it.
package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeProcessing     ChargeStatus = "processing"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargeFailed         ChargeStatus = "failed"
	ChargeCanceled       ChargeStatus = "canceled"
)

// ChargeRequest describes a single off-session charge against a payer's
// stored payment method.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	IdempotencyKey  string
}

type Charge struct {
	ID     string
	Status ChargeStatus
}

// TransferRequest describes a payout of a recipient's accumulated share to
// their connected payout account.
type TransferRequest struct {
	DestinationAccountID string
	Amount               decimal.Decimal
	Currency             string
	Description          string
	IdempotencyKey       string
}

type Transfer struct {
	ID string
}

type Account struct {
	ID             string
	PayoutsEnabled bool
}

type Client interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
}

// ToCents converts a decimal dollar amount to integer cents, the unit the
// processor's API expects. Amounts are rounded half-up to the cent first.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
