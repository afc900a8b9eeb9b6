package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FakeClient is an in-memory Client for tests and dry runs. It records every
// request and answers with configurable outcomes.
type FakeClient struct {
	mu sync.Mutex

	Charges   []ChargeRequest
	Transfers []TransferRequest

	ChargeStatus ChargeStatus // zero value means succeeded
	ChargeErr    error
	TransferErr  error

	// PayoutsDisabled lists account IDs that report payouts_enabled=false.
	PayoutsDisabled map[string]bool

	nextCharge   int
	nextTransfer int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ChargeErr != nil {
		return Charge{}, f.ChargeErr
	}

	f.Charges = append(f.Charges, req)
	f.nextCharge++

	status := f.ChargeStatus
	if status == "" {
		status = ChargeSucceeded
	}
	return Charge{ID: fmt.Sprintf("ch_fake_%d", f.nextCharge), Status: status}, nil
}

func (f *FakeClient) CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TransferErr != nil {
		return Transfer{}, f.TransferErr
	}

	f.Transfers = append(f.Transfers, req)
	f.nextTransfer++
	return Transfer{ID: fmt.Sprintf("tr_fake_%d", f.nextTransfer)}, nil
}

func (f *FakeClient) GetAccount(ctx context.Context, accountID string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Account{ID: accountID, PayoutsEnabled: !f.PayoutsDisabled[accountID]}, nil
}

// TotalCharged sums the amounts of all recorded charges.
func (f *FakeClient) TotalCharged() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := decimal.Zero
	for _, c := range f.Charges {
		total = total.Add(c.Amount)
	}
	return total
}
