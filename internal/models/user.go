package models

import "time"

// User carries the engine-relevant slice of an account: the timezone that
// defines the user's day/week boundaries and the payment references written
// by the onboarding subsystem. StripeCustomerID/PaymentMethodID are required
// to charge the user; ConnectAccountID is required to pay the user out as a
// recipient.
type User struct {
	ID                     string     `json:"id"`
	Timezone               string     `json:"timezone"`
	StripeCustomerID       string     `json:"stripe_customer_id,omitempty"`
	PaymentMethodID        string     `json:"payment_method_id,omitempty"`
	ConnectAccountID       string     `json:"connect_account_id,omitempty"`
	PaymentMethodUpdatedAt *time.Time `json:"payment_method_updated_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// CanBeCharged reports whether the payer has completed payment onboarding.
func (u User) CanBeCharged() bool {
	return u.StripeCustomerID != "" && u.PaymentMethodID != ""
}

// CanReceivePayouts reports whether the user has a payout account on file.
func (u User) CanReceivePayouts() bool {
	return u.ConnectAccountID != ""
}
