package constants

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money constants are compile-time fixed. The settlement engine stamps the
// fee rate onto each penalty row at transfer time, so changing a value here
// never rewrites history.
var (
	// MinimumCharge is the smallest aggregated penalty total worth charging.
	// Below this the penalties wait for further accrual.
	MinimumCharge = decimal.NewFromFloat(5.00)

	// MinimumTransfer is the smallest net payout forwarded to a recipient.
	// Smaller shares stay untransferred until a later settlement.
	MinimumTransfer = decimal.NewFromFloat(5.00)

	// PlatformFeeRate is the cut retained from each recipient payout.
	PlatformFeeRate = decimal.NewFromFloat(0.15)
)

const (
	// Currency for all charges and transfers.
	Currency = "usd"

	// DailyEvaluationHour is the local hour at which the previous day's
	// daily habits are evaluated for each user.
	DailyEvaluationHour = 0

	// SettlementHour is the local hour of the weekly settlement pass.
	SettlementHour = 0

	// TickInterval is how often the scheduler driver wakes up. It must be
	// at most one hour so no user's local target hour is skipped.
	TickInterval = time.Hour

	// MaxConcurrentUserJobs bounds per-tick fan-out so the database and the
	// payment processor are not hammered by one tick.
	MaxConcurrentUserJobs = 8

	// DateFormat is the canonical local-date layout used in storage keys.
	DateFormat = "2006-01-02"
)

// SettlementWeekday is the local weekday of the weekly settlement pass.
const SettlementWeekday = time.Sunday
