// Package settlement aggregates a user's outstanding penalties into a single
// charge, then fans the collected funds out to recipients net of the
// platform fee.
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/payments"
)

// Store is the slice of storage the settlement engine needs.
type Store interface {
	GetUser(id string) (models.User, error)
	ListUnpaidPenalties(userID string) ([]models.Penalty, error)
	ListTransferablePenalties(userID string) ([]models.Penalty, error)
	ListPenaltiesByCharge(chargeID string) ([]models.Penalty, error)
	UpdatePenaltySettlement(models.Penalty) error
}

type Engine struct {
	store    Store
	payments payments.Client
	log      *log.Logger
}

func NewEngine(store Store, client payments.Client, logger *log.Logger) *Engine {
	return &Engine{store: store, payments: client, log: logger}
}

// SettleUser runs one settlement pass for a payer: collect unpaid penalties,
// charge once if the total crosses the minimum, then forward recipient
// shares. Missing payment onboarding is a configuration error: the user is
// skipped for this pass, never failed hard.
func (e *Engine) SettleUser(ctx context.Context, user models.User) error {
	unpaid, err := e.store.ListUnpaidPenalties(user.ID)
	if err != nil {
		return fmt.Errorf("failed to list unpaid penalties for %s: %w", user.ID, err)
	}

	eligible := chargeable(user, unpaid)
	if len(eligible) == 0 {
		// Nothing new to charge, but a previous pass may have left
		// recipient shares under the transfer minimum.
		return e.TransferToRecipients(ctx, user)
	}

	total := decimal.Zero
	for _, p := range eligible {
		total = total.Add(p.Amount)
	}

	if total.LessThan(constants.MinimumCharge) {
		e.log.Debug("below charge minimum, waiting for further accrual",
			"user_id", user.ID, "total", total)
		return nil
	}

	if !user.CanBeCharged() {
		e.log.Warn("user has unpaid penalties but no payment method on file",
			"user_id", user.ID, "total", total)
		return nil
	}

	charge, err := e.payments.CreateCharge(ctx, payments.ChargeRequest{
		CustomerID:      user.StripeCustomerID,
		PaymentMethodID: user.PaymentMethodID,
		Amount:          total,
		Currency:        constants.Currency,
		Description:     fmt.Sprintf("anteup penalties (%d missed)", len(eligible)),
		IdempotencyKey:  chargeIdempotencyKey(user.ID, eligible),
	})
	if err != nil {
		// Transport failure: penalties stay unpaid and the next pass
		// retries with the same idempotency key.
		return fmt.Errorf("charge failed for %s: %w", user.ID, err)
	}

	status := statusFromCharge(charge.Status)
	paid := status == models.PaymentSucceeded

	for _, p := range eligible {
		p.IsPaid = paid
		p.PaymentStatus = status
		p.ChargeID = charge.ID
		if err := e.store.UpdatePenaltySettlement(p); err != nil {
			// The charge went through; reconciliation recovers rows the
			// crash left behind via the charge reference.
			e.log.Error("failed to record charge on penalty",
				"penalty_id", p.ID, "charge_id", charge.ID, "err", err)
		}
	}

	e.log.Info("settlement charge created",
		"user_id", user.ID, "charge_id", charge.ID, "amount", total, "status", status)

	if !paid {
		return nil
	}
	return e.TransferToRecipients(ctx, user)
}

// TransferToRecipients forwards each recipient's accumulated share of the
// payer's charged penalties, net of the platform fee. Shares under the
// transfer minimum are deferred, not forfeited.
func (e *Engine) TransferToRecipients(ctx context.Context, user models.User) error {
	rows, err := e.store.ListTransferablePenalties(user.ID)
	if err != nil {
		return fmt.Errorf("failed to list transferable penalties for %s: %w", user.ID, err)
	}
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string][]models.Penalty)
	for _, p := range rows {
		if p.RecipientID == nil {
			continue
		}
		groups[*p.RecipientID] = append(groups[*p.RecipientID], p)
	}

	for recipientID, group := range groups {
		gross := decimal.Zero
		for _, p := range group {
			gross = gross.Add(p.Amount)
		}
		fee := gross.Mul(constants.PlatformFeeRate).Round(2)
		transferAmount := gross.Sub(fee)

		if transferAmount.LessThan(constants.MinimumTransfer) {
			e.log.Debug("recipient share below transfer minimum, deferring",
				"recipient_id", recipientID, "share", transferAmount)
			continue
		}

		recipient, err := e.store.GetUser(recipientID)
		if err != nil {
			e.log.Warn("recipient not found, skipping payout", "recipient_id", recipientID, "err", err)
			continue
		}
		if !recipient.CanReceivePayouts() {
			e.log.Warn("recipient has no payout account, skipping payout", "recipient_id", recipientID)
			continue
		}

		account, err := e.payments.GetAccount(ctx, recipient.ConnectAccountID)
		if err != nil {
			e.log.Warn("failed to check payout account, skipping payout",
				"recipient_id", recipientID, "err", err)
			continue
		}
		if !account.PayoutsEnabled {
			e.log.Warn("payout account not yet enabled, skipping payout",
				"recipient_id", recipientID, "account_id", account.ID)
			continue
		}

		transfer, err := e.payments.CreateTransfer(ctx, payments.TransferRequest{
			DestinationAccountID: recipient.ConnectAccountID,
			Amount:               transferAmount,
			Currency:             constants.Currency,
			Description:          fmt.Sprintf("anteup payout from %s", user.ID),
			IdempotencyKey:       transferIdempotencyKey(recipientID, group),
		})
		if err != nil {
			e.log.Error("transfer failed, will retry next pass",
				"recipient_id", recipientID, "amount", transferAmount, "err", err)
			continue
		}

		// Stamp the fee rate actually used so historical payouts stay
		// auditable even if the rate changes later.
		feeRate := constants.PlatformFeeRate
		for _, p := range group {
			p.TransferID = transfer.ID
			p.FeeRate = &feeRate
			if err := e.store.UpdatePenaltySettlement(p); err != nil {
				e.log.Error("failed to record transfer on penalty",
					"penalty_id", p.ID, "transfer_id", transfer.ID, "err", err)
			}
		}

		e.log.Info("payout transferred", "recipient_id", recipientID,
			"transfer_id", transfer.ID, "gross", gross, "fee", fee, "net", transferAmount)
	}

	return nil
}

// chargeable filters the payer's unpaid penalties down to the set this pass
// may charge. Rows already tied to an in-flight charge wait for
// reconciliation; declined rows wait for a new payment method; rows needing
// customer action wait for the customer.
func chargeable(user models.User, unpaid []models.Penalty) []models.Penalty {
	var eligible []models.Penalty
	for _, p := range unpaid {
		switch p.PaymentStatus {
		case models.PaymentUnpaid, models.PaymentCanceled:
			eligible = append(eligible, p)
		case models.PaymentProcessing:
			if p.ChargeID == "" {
				eligible = append(eligible, p)
			}
		case models.PaymentFailed:
			if user.PaymentMethodUpdatedAt != nil && user.PaymentMethodUpdatedAt.After(p.UpdatedAt) {
				eligible = append(eligible, p)
			}
		}
	}
	return eligible
}

func statusFromCharge(status payments.ChargeStatus) models.PaymentStatus {
	switch status {
	case payments.ChargeSucceeded:
		return models.PaymentSucceeded
	case payments.ChargeProcessing:
		return models.PaymentProcessing
	case payments.ChargeRequiresAction:
		return models.PaymentRequiresAction
	case payments.ChargeCanceled:
		return models.PaymentCanceled
	default:
		return models.PaymentFailed
	}
}

// chargeIdempotencyKey is stable for a given penalty set, so a retried pass
// after a crash reuses the processor-side charge instead of double-charging.
func chargeIdempotencyKey(userID string, penalties []models.Penalty) string {
	ids := make([]string, 0, len(penalties))
	for _, p := range penalties {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(userID + ":" + strings.Join(ids, ",")))
	return "settle-" + hex.EncodeToString(sum[:16])
}

func transferIdempotencyKey(recipientID string, penalties []models.Penalty) string {
	ids := make([]string, 0, len(penalties))
	for _, p := range penalties {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(recipientID + ":" + strings.Join(ids, ",")))
	return "payout-" + hex.EncodeToString(sum[:16])
}
