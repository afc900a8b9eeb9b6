package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/anteuphq/anteup/internal/payments"
	"github.com/anteuphq/anteup/internal/secrets"
)

type WebhookCmd struct {
	Addr   string `help:"Listen address for the webhook endpoint." default:":8484" env:"ANTEUP_WEBHOOK_ADDR"`
	Secret string `help:"Stripe webhook signing secret. Defaults to the keyring entry or STRIPE_WEBHOOK_SECRET."`
}

// Run serves the payment-processor event endpoint. Charge outcome events are
// verified against the signing secret and fed to the settlement reconciler;
// everything else is acknowledged and ignored.
func (c *WebhookCmd) Run(ctx *Context) error {
	if c.Secret == "" {
		c.Secret = secrets.WebhookSecret()
	}
	if c.Secret == "" {
		return fmt.Errorf("webhook signing secret is required (run 'anteup secret set %s ...' or set %s)",
			secrets.NameWebhookSecret, secrets.EnvWebhookSecret)
	}
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	_, settlementEngine, _, _ := ctx.engines()

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/stripe", func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusServiceUnavailable)
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), c.Secret)
		if err != nil {
			ctx.Log.Warn("webhook signature verification failed", "err", err)
			http.Error(w, "bad signature", http.StatusBadRequest)
			return
		}

		status, relevant := chargeStatusFromEvent(string(event.Type))
		if !relevant {
			w.WriteHeader(http.StatusOK)
			return
		}

		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			ctx.Log.Error("failed to decode payment intent event", "err", err)
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}

		if err := settlementEngine.ReconcileCharge(r.Context(), intent.ID, status); err != nil {
			ctx.Log.Error("reconciliation failed", "charge_id", intent.ID, "err", err)
			// Non-200 makes the processor redeliver; reconciliation is
			// idempotent so the retry is safe.
			http.Error(w, "reconciliation failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	ctx.Log.Info("webhook listener starting", "addr", c.Addr)
	return http.ListenAndServe(c.Addr, mux)
}

func chargeStatusFromEvent(eventType string) (payments.ChargeStatus, bool) {
	switch eventType {
	case "payment_intent.succeeded":
		return payments.ChargeSucceeded, true
	case "payment_intent.payment_failed":
		return payments.ChargeFailed, true
	case "payment_intent.canceled":
		return payments.ChargeCanceled, true
	case "payment_intent.requires_action":
		return payments.ChargeRequiresAction, true
	case "payment_intent.processing":
		return payments.ChargeProcessing, true
	default:
		return "", false
	}
}
