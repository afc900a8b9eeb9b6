package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/anteuphq/anteup/internal/constants"
	"github.com/anteuphq/anteup/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle   = lipgloss.NewStyle().Bold(true)
	amountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	owedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type StatusCmd struct{}

// Run prints each user's outstanding obligations and, where they are a
// recipient, how much is pending versus already paid out.
func (c *StatusCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	users, err := ctx.Store.ListUsers()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("anteup settlement status"))
	fmt.Println()

	for _, user := range users {
		unpaid, err := ctx.Store.ListUnpaidPenalties(user.ID)
		if err != nil {
			return err
		}

		owed := decimal.Zero
		for _, p := range unpaid {
			owed = owed.Add(p.Amount)
		}

		pending, earned, err := recipientTotals(ctx, user.ID)
		if err != nil {
			return err
		}

		if owed.IsZero() && pending.IsZero() && earned.IsZero() {
			continue
		}

		fmt.Println(userStyle.Render(user.ID) + dimStyle.Render("  ("+user.Timezone+")"))
		if !owed.IsZero() {
			fmt.Printf("  owes      %s  (%d penalties)\n", owedStyle.Render("$"+owed.StringFixed(2)), len(unpaid))
		}
		if !pending.IsZero() {
			fmt.Printf("  pending   %s\n", amountStyle.Render("$"+pending.StringFixed(2)))
		}
		if !earned.IsZero() {
			fmt.Printf("  earned    %s\n", amountStyle.Render("$"+earned.StringFixed(2)))
		}
		fmt.Println()
	}

	return nil
}

// recipientTotals aggregates a user's recipient side of the ledger: pending
// is the estimated net share of charged-but-untransferred penalties, earned
// is the net of completed transfers at each row's stamped fee rate.
func recipientTotals(ctx *Context, recipientID string) (pending, earned decimal.Decimal, err error) {
	rows, err := ctx.Store.ListRecipientPenalties(recipientID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	one := decimal.NewFromInt(1)
	for _, p := range rows {
		if p.PaymentStatus != models.PaymentSucceeded {
			continue
		}
		if p.TransferID != "" && p.FeeRate != nil {
			earned = earned.Add(p.Amount.Mul(one.Sub(*p.FeeRate)).Round(2))
		} else if p.TransferID == "" {
			pending = pending.Add(p.Amount.Mul(one.Sub(constants.PlatformFeeRate)).Round(2))
		}
	}
	return pending, earned, nil
}
