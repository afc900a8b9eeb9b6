package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeClient implements Client against the Stripe API: PaymentIntents for
// charges, Transfers for recipient payouts.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}
}

func (c *StripeClient) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(ToCents(req.Amount)),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Description:   stripe.String(req.Description),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		// A card decline still yields an intent we can track; anything
		// else is a transport-level failure the caller retries later.
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.PaymentIntent != nil {
			return Charge{
				ID:     stripeErr.PaymentIntent.ID,
				Status: mapIntentStatus(stripeErr.PaymentIntent.Status),
			}, nil
		}
		return Charge{}, fmt.Errorf("failed to create charge: %w", err)
	}

	return Charge{ID: intent.ID, Status: mapIntentStatus(intent.Status)}, nil
}

func (c *StripeClient) CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToCents(req.Amount)),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationAccountID),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	transfer, err := c.api.Transfers.New(params)
	if err != nil {
		return Transfer{}, fmt.Errorf("failed to create transfer: %w", err)
	}
	return Transfer{ID: transfer.ID}, nil
}

func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return Account{}, fmt.Errorf("failed to retrieve account %s: %w", accountID, err)
	}
	return Account{ID: account.ID, PayoutsEnabled: account.PayoutsEnabled}, nil
}

func mapIntentStatus(status stripe.PaymentIntentStatus) ChargeStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return ChargeProcessing
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation:
		return ChargeRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return ChargeCanceled
	default:
		return ChargeFailed
	}
}
