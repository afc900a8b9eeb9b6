package settlement

import (
	"context"
	"fmt"

	"github.com/anteuphq/anteup/internal/models"
	"github.com/anteuphq/anteup/internal/payments"
)

// ReconcileCharge applies an asynchronous processor event to every penalty
// tied to the charge. It is idempotent: replayed events settle into the same
// state, and unknown charge references are ignored rather than failed so
// webhook retries for foreign events don't error.
func (e *Engine) ReconcileCharge(ctx context.Context, chargeID string, status payments.ChargeStatus) error {
	rows, err := e.store.ListPenaltiesByCharge(chargeID)
	if err != nil {
		return fmt.Errorf("failed to list penalties for charge %s: %w", chargeID, err)
	}
	if len(rows) == 0 {
		e.log.Debug("charge event matched no penalties", "charge_id", chargeID)
		return nil
	}

	newStatus := statusFromCharge(status)
	paid := newStatus == models.PaymentSucceeded

	for _, p := range rows {
		if p.PaymentStatus == newStatus && p.IsPaid == paid {
			continue
		}
		p.PaymentStatus = newStatus
		p.IsPaid = paid
		if err := e.store.UpdatePenaltySettlement(p); err != nil {
			return fmt.Errorf("failed to reconcile penalty %s: %w", p.ID, err)
		}
	}

	e.log.Info("charge reconciled", "charge_id", chargeID, "status", newStatus, "penalties", len(rows))

	if !paid {
		return nil
	}

	// The charge landed after the settlement pass gave up on it; forward
	// any recipient shares it unlocked.
	payer, err := e.store.GetUser(rows[0].UserID)
	if err != nil {
		return fmt.Errorf("failed to load payer %s: %w", rows[0].UserID, err)
	}
	return e.TransferToRecipients(ctx, payer)
}
