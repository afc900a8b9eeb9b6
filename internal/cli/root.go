package cli

import (
	"github.com/charmbracelet/log"

	"github.com/anteuphq/anteup/internal/accrual"
	"github.com/anteuphq/anteup/internal/driver"
	"github.com/anteuphq/anteup/internal/payments"
	"github.com/anteuphq/anteup/internal/progress"
	"github.com/anteuphq/anteup/internal/settlement"
	"github.com/anteuphq/anteup/internal/staged"
	"github.com/anteuphq/anteup/internal/storage"
	"github.com/anteuphq/anteup/internal/verification"
)

// Context carries the process-wide service handles. It is constructed once
// in main and passed to every command; there is no ambient global state
// beyond the logger.
type Context struct {
	Store    storage.Provider
	Payments payments.Client
	Log      *log.Logger
}

// engines wires the full evaluation stack on top of the loaded store.
func (c *Context) engines() (*accrual.Engine, *settlement.Engine, *staged.Applier, *driver.Driver) {
	reader := verification.NewReader(c.Store)
	tracker := progress.NewTracker(c.Store, reader)
	accrualEngine := accrual.NewEngine(c.Store, reader, tracker, c.Log)
	settlementEngine := settlement.NewEngine(c.Store, c.Payments, c.Log)
	applier := staged.NewApplier(c.Store, c.Log)
	drv := driver.New(c.Store, accrualEngine, settlementEngine, applier, c.Log)

	return accrualEngine, settlementEngine, applier, drv
}
